package service

import (
	"context"
	"testing"
	"time"

	allocerrors "lanedesk/internal/allocation/errors"
	sessionerrors "lanedesk/internal/lanesession/errors"
	sessionvalidator "lanedesk/internal/lanesession/validator"
	"lanedesk/pkg/config"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/logger"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type mockResourceRepository struct {
	findByIDFunc      func(ctx context.Context, id string) (*model.Resource, error)
	holdFunc          func(ctx context.Context, resourceID, sessionID string) (*model.Resource, error)
	claimFunc         func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error)
	findAvailableFunc func(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error)
	released          []string
}

func (m *mockResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, allocerrors.ErrNotFound
}

func (m *mockResourceRepository) HoldResource(ctx context.Context, resourceID, sessionID string) (*model.Resource, error) {
	if m.holdFunc != nil {
		return m.holdFunc(ctx, resourceID, sessionID)
	}
	return nil, allocerrors.ErrClaimLost
}

func (m *mockResourceRepository) ReleaseHold(ctx context.Context, resourceID, sessionID string) error {
	m.released = append(m.released, resourceID)
	return nil
}

func (m *mockResourceRepository) ClaimOccupied(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
	if m.claimFunc != nil {
		return m.claimFunc(ctx, resourceID, sessionID, customerID)
	}
	return nil, allocerrors.ErrClaimLost
}

func (m *mockResourceRepository) FindAvailableByTier(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error) {
	if m.findAvailableFunc != nil {
		return m.findAvailableFunc(ctx, tier, excludeIDs)
	}
	return nil, nil
}

type mockWaitlistRepository struct {
	active   int64
	demand   int64
	reserved []string
}

func (m *mockWaitlistRepository) CountActive(ctx context.Context, tier string) (int64, error) {
	return m.active, nil
}

func (m *mockWaitlistRepository) CountActiveDemand(ctx context.Context, tier string, now time.Time) (int64, error) {
	return m.demand, nil
}

func (m *mockWaitlistRepository) ReservedResourceIDs(ctx context.Context, tier string) ([]string, error) {
	return m.reserved, nil
}

type mockLaneLockRepository struct {
	acquireErr error
	acquired   []string
	releases   []string
}

func (m *mockLaneLockRepository) Acquire(ctx context.Context, lock *model.LaneLock) error {
	if m.acquireErr != nil {
		return m.acquireErr
	}
	m.acquired = append(m.acquired, lock.ID)
	return nil
}

func (m *mockLaneLockRepository) Release(ctx context.Context, lockID string) error {
	m.releases = append(m.releases, lockID)
	return nil
}

type mockSessionStore struct {
	session     *model.LaneSession
	resourceSet string
	cleared     bool
}

func (m *mockSessionStore) FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error) {
	if m.session == nil {
		return nil, sessionerrors.ErrNotFound
	}
	return m.session, nil
}

func (m *mockSessionStore) SetResourceRef(ctx context.Context, id, resourceID, kind string) error {
	m.resourceSet = resourceID
	return nil
}

func (m *mockSessionStore) ClearResourceRef(ctx context.Context, id string) error {
	m.cleared = true
	return nil
}

type mockRecorder struct {
	entries []*model.AuditEntry
}

func (m *mockRecorder) Record(ctx context.Context, entry *model.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

type eventPublisher struct {
	events []string
	states int
}

func (p *eventPublisher) PublishState(ctx context.Context, laneID string) {
	p.states++
}

func (p *eventPublisher) PublishEvent(ctx context.Context, laneID, eventType string, payload any) {
	p.events = append(p.events, eventType)
}

func (p *eventPublisher) has(eventType string) bool {
	for _, e := range p.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func allocTestConfig() *config.Config {
	return &config.Config{
		LaneLockTTL:       10 * time.Second,
		WaitlistETABuffer: 15 * time.Minute,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func newAllocator(resources *mockResourceRepository, waitlist *mockWaitlistRepository, locks *mockLaneLockRepository, sessions *mockSessionStore, publisher *eventPublisher) AllocatorService {
	cfg := allocTestConfig()
	return NewAllocatorService(resources, waitlist, locks, sessions, &mockRecorder{}, publisher, sessionvalidator.NewSessionValidator(cfg.Log), cfg)
}

func cleanRoom(id string, number int, tier string) *model.Resource {
	return &model.Resource{
		ID:     id,
		Number: number,
		Kind:   model.KindRoom,
		Tier:   tier,
		Status: model.ResourceClean,
	}
}

func allocSession() *model.LaneSession {
	return &model.LaneSession{
		ID:          "686f1f77bcf86cd799439021",
		LaneID:      "lane-1",
		Status:      model.SessionAwaitingAssign,
		CustomerID:  "507f1f77bcf86cd799439011",
		Mode:        model.ModeInitial,
		DesiredTier: model.TierStandard,
	}
}

func TestAutoSelect_SkipsSlotsReservedForWaitlist(t *testing.T) {
	candidates := []*model.Resource{
		cleanRoom("507f1f77bcf86cd799439031", 101, model.TierStandard),
		cleanRoom("507f1f77bcf86cd799439032", 102, model.TierStandard),
		cleanRoom("507f1f77bcf86cd799439033", 103, model.TierStandard),
	}
	var claimed []string
	resources := &mockResourceRepository{
		findAvailableFunc: func(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error) {
			return candidates, nil
		},
		claimFunc: func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
			claimed = append(claimed, resourceID)
			for _, c := range candidates {
				if c.ID == resourceID {
					occupied := *c
					occupied.Status = model.ResourceOccupied
					occupied.AssignedCustomer = customerID
					return &occupied, nil
				}
			}
			return nil, allocerrors.ErrNotFound
		},
	}
	locks := &mockLaneLockRepository{}
	svc := newAllocator(resources, &mockWaitlistRepository{demand: 1}, locks, &mockSessionStore{}, &eventPublisher{})

	got, err := svc.AutoSelect(context.Background(), model.TierStandard, "sess-1", "cust-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Number != 102 {
		t.Errorf("expected room 102 with one queued customer ahead, got %d", got.Number)
	}
	if len(claimed) != 1 || claimed[0] != candidates[1].ID {
		t.Errorf("expected a single claim on %s, got %v", candidates[1].ID, claimed)
	}
	if len(locks.releases) != 1 {
		t.Error("selection lock was not released")
	}
}

func TestAutoSelect_SkipsUnitsLostToConcurrentLanes(t *testing.T) {
	candidates := []*model.Resource{
		cleanRoom("507f1f77bcf86cd799439031", 101, model.TierStandard),
		cleanRoom("507f1f77bcf86cd799439032", 102, model.TierStandard),
	}
	resources := &mockResourceRepository{
		findAvailableFunc: func(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error) {
			return candidates, nil
		},
		claimFunc: func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
			if resourceID == candidates[0].ID {
				// Another lane got here first.
				return nil, allocerrors.ErrClaimLost
			}
			occupied := *candidates[1]
			occupied.Status = model.ResourceOccupied
			return &occupied, nil
		},
	}
	svc := newAllocator(resources, &mockWaitlistRepository{}, &mockLaneLockRepository{}, &mockSessionStore{}, &eventPublisher{})

	got, err := svc.AutoSelect(context.Background(), model.TierStandard, "sess-1", "cust-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Number != 102 {
		t.Errorf("expected fallback to room 102, got %d", got.Number)
	}
}

func TestAutoSelect_NoAvailabilityConflict(t *testing.T) {
	resources := &mockResourceRepository{
		findAvailableFunc: func(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error) {
			return []*model.Resource{cleanRoom("507f1f77bcf86cd799439031", 101, model.TierSpecial)}, nil
		},
	}
	svc := newAllocator(resources, &mockWaitlistRepository{demand: 1}, &mockLaneLockRepository{}, &mockSessionStore{}, &eventPublisher{})

	_, err := svc.AutoSelect(context.Background(), model.TierSpecial, "sess-1", "cust-1")
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected Conflict with all units reserved for the queue, got %v", err)
	}
}

func TestAutoSelect_TierLockContention(t *testing.T) {
	locks := &mockLaneLockRepository{
		acquireErr: mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}},
	}
	svc := newAllocator(&mockResourceRepository{}, &mockWaitlistRepository{}, locks, &mockSessionStore{}, &eventPublisher{})

	_, err := svc.AutoSelect(context.Background(), model.TierStandard, "sess-1", "cust-1")
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected Conflict while another lane holds the tier lock, got %v", err)
	}
}

func TestAssignResource_RaceLoserGetsConflict(t *testing.T) {
	room := cleanRoom("507f1f77bcf86cd799439031", 101, model.TierStandard)
	resources := &mockResourceRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Resource, error) {
			return room, nil
		},
		holdFunc: func(ctx context.Context, resourceID, sessionID string) (*model.Resource, error) {
			return nil, allocerrors.ErrClaimLost
		},
	}
	publisher := &eventPublisher{}
	svc := newAllocator(resources, &mockWaitlistRepository{}, &mockLaneLockRepository{}, &mockSessionStore{session: allocSession()}, publisher)

	_, err := svc.AssignResource(context.Background(), "lane-1", &AssignResourceInput{
		Kind:       model.KindRoom,
		ResourceID: room.ID,
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if !publisher.has("assignment.failed") {
		t.Error("race losers must still broadcast the failure for idle observers")
	}
}

func TestAssignResource_DirtyResourceRejected(t *testing.T) {
	room := cleanRoom("507f1f77bcf86cd799439031", 101, model.TierStandard)
	room.Status = model.ResourceDirty
	resources := &mockResourceRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Resource, error) {
			return room, nil
		},
	}
	svc := newAllocator(resources, &mockWaitlistRepository{}, &mockLaneLockRepository{}, &mockSessionStore{session: allocSession()}, &eventPublisher{})

	_, err := svc.AssignResource(context.Background(), "lane-1", &AssignResourceInput{
		Kind:       model.KindRoom,
		ResourceID: room.ID,
	})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAssignResource_TierMismatchRequiresConfirmation(t *testing.T) {
	double := cleanRoom("507f1f77bcf86cd799439032", 201, model.TierDouble)
	resources := &mockResourceRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Resource, error) {
			return double, nil
		},
		holdFunc: func(ctx context.Context, resourceID, sessionID string) (*model.Resource, error) {
			held := *double
			held.HeldBySession = sessionID
			return &held, nil
		},
	}
	publisher := &eventPublisher{}
	sessions := &mockSessionStore{session: allocSession()}
	svc := newAllocator(resources, &mockWaitlistRepository{}, &mockLaneLockRepository{}, sessions, publisher)

	result, err := svc.AssignResource(context.Background(), "lane-1", &AssignResourceInput{
		Kind:       model.KindRoom,
		ResourceID: double.ID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ConfirmationRequired {
		t.Error("a tier mismatch must route through customer confirmation")
	}
	if !publisher.has("assignment.confirmation_required") {
		t.Error("confirmation required event not emitted")
	}
	if result.Resource.Status != model.ResourceClean {
		t.Errorf("tentative assignment must leave the unit CLEAN, got %s", result.Resource.Status)
	}
	if sessions.resourceSet != double.ID {
		t.Errorf("session did not record resource %s", double.ID)
	}
}

func TestConfirmResource_DeclineReleasesHold(t *testing.T) {
	session := allocSession()
	session.ResourceID = "507f1f77bcf86cd799439032"
	session.ResourceKind = model.KindRoom

	resources := &mockResourceRepository{}
	sessions := &mockSessionStore{session: session}
	publisher := &eventPublisher{}
	svc := newAllocator(resources, &mockWaitlistRepository{}, &mockLaneLockRepository{}, sessions, publisher)

	got, err := svc.ConfirmResource(context.Background(), "lane-1", &ConfirmResourceInput{
		Accept:      false,
		ConfirmedBy: model.ActorCustomer,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resources.released) != 1 || resources.released[0] != "507f1f77bcf86cd799439032" {
		t.Errorf("expected hold released, got %v", resources.released)
	}
	if !sessions.cleared {
		t.Error("session resource reference not cleared")
	}
	if got.ResourceID != "" {
		t.Error("returned session still references the declined resource")
	}
	if !publisher.has("customer.declined") {
		t.Error("declined event not emitted")
	}
}

func TestComputeWaitlistInfo_PositionAndETA(t *testing.T) {
	now := time.Now().UTC()
	ends := []time.Time{
		now.Add(30 * time.Minute),
		now.Add(time.Hour),
		now.Add(2 * time.Hour),
	}
	estimator := NewWaitlistEstimator(
		&mockWaitlistRepository{active: 2},
		blockEndSourceFunc(func(ctx context.Context, after time.Time, limit int) ([]time.Time, error) {
			if limit < len(ends) {
				return ends[:limit], nil
			}
			return ends, nil
		}),
		allocTestConfig(),
	)

	info, err := estimator.ComputeWaitlistInfo(context.Background(), model.TierSpecial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Position != 3 {
		t.Errorf("expected position 3 behind two queued entries, got %d", info.Position)
	}
	want := ends[2].Add(15 * time.Minute)
	if info.ETA == nil || !info.ETA.Equal(want) {
		t.Errorf("expected ETA %v, got %v", want, info.ETA)
	}
}

func TestComputeWaitlistInfo_ETAUnknownWithFewBlocks(t *testing.T) {
	now := time.Now().UTC()
	ends := []time.Time{now.Add(30 * time.Minute), now.Add(time.Hour)}
	estimator := NewWaitlistEstimator(
		&mockWaitlistRepository{active: 2},
		blockEndSourceFunc(func(ctx context.Context, after time.Time, limit int) ([]time.Time, error) {
			return ends, nil
		}),
		allocTestConfig(),
	)

	info, err := estimator.ComputeWaitlistInfo(context.Background(), model.TierSpecial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ETA != nil {
		t.Errorf("expected unknown ETA with only two upcoming blocks, got %v", info.ETA)
	}
}

type blockEndSourceFunc func(ctx context.Context, after time.Time, limit int) ([]time.Time, error)

func (f blockEndSourceFunc) UpcomingEndTimes(ctx context.Context, after time.Time, limit int) ([]time.Time, error) {
	return f(ctx, after, limit)
}
