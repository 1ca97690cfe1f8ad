package service

import (
	"context"
	"testing"
	"time"

	"lanedesk/internal/agreement"
	allocerrors "lanedesk/internal/allocation/errors"
	commiterrors "lanedesk/internal/commit/errors"
	sessionerrors "lanedesk/internal/lanesession/errors"
	sessionvalidator "lanedesk/internal/lanesession/validator"
	"lanedesk/pkg/config"
	mongotx "lanedesk/pkg/db/mongo"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/logger"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type mockSessionStore struct {
	session *model.LaneSession
	findErr error

	statusUpdates []string
	resourceRefs  []string
	cleared       bool
}

func (m *mockSessionStore) FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.session, nil
}

func (m *mockSessionStore) SetResourceRef(ctx context.Context, id, resourceID, kind string) error {
	m.resourceRefs = append(m.resourceRefs, resourceID)
	return nil
}

func (m *mockSessionStore) ClearResourceRef(ctx context.Context, id string) error {
	m.cleared = true
	return nil
}

func (m *mockSessionStore) UpdateStatus(ctx context.Context, id, status string) error {
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockSessionStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type mockClaimer struct {
	claimFunc func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error)
	claims    int
}

func (m *mockClaimer) ClaimOccupied(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
	m.claims++
	if m.claimFunc != nil {
		return m.claimFunc(ctx, resourceID, sessionID, customerID)
	}
	return nil, allocerrors.ErrClaimLost
}

type mockPicker struct {
	resource *model.Resource
	err      error
	calls    int
}

func (m *mockPicker) AutoSelect(ctx context.Context, tier, sessionID, customerID string) (*model.Resource, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.resource, nil
}

type mockIntentReader struct {
	intent *model.PaymentIntent
}

func (m *mockIntentReader) FindByID(ctx context.Context, id string) (*model.PaymentIntent, error) {
	return m.intent, nil
}

type mockVisitRepository struct {
	open    *model.Visit
	created []*model.Visit
	closed  []string
}

func (m *mockVisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	visit.ID = "visit-new"
	visit.OpenedAt = time.Now().UTC()
	m.created = append(m.created, visit)
	return nil
}

func (m *mockVisitRepository) FindOpenByCustomer(ctx context.Context, customerID string) (*model.Visit, error) {
	if m.open == nil {
		return nil, commiterrors.ErrNotFound
	}
	return m.open, nil
}

func (m *mockVisitRepository) Close(ctx context.Context, id string, at time.Time) error {
	m.closed = append(m.closed, id)
	return nil
}

type mockBlockRepository struct {
	last     *model.OccupancyBlock
	total    time.Duration
	inserted []*model.OccupancyBlock
	endTimes []time.Time
}

func (m *mockBlockRepository) Insert(ctx context.Context, block *model.OccupancyBlock) error {
	block.ID = "block-new"
	m.inserted = append(m.inserted, block)
	return nil
}

func (m *mockBlockRepository) FindLastByVisit(ctx context.Context, visitID string) (*model.OccupancyBlock, error) {
	if m.last == nil {
		return nil, commiterrors.ErrNotFound
	}
	return m.last, nil
}

func (m *mockBlockRepository) SumDurationsByVisit(ctx context.Context, visitID string) (time.Duration, error) {
	return m.total, nil
}

func (m *mockBlockRepository) UpcomingEndTimes(ctx context.Context, after time.Time, limit int) ([]time.Time, error) {
	return m.endTimes, nil
}

type mockAgreementRepository struct {
	created []*model.Agreement
}

func (m *mockAgreementRepository) Create(ctx context.Context, agreement *model.Agreement) error {
	agreement.ID = "agreement-new"
	m.created = append(m.created, agreement)
	return nil
}

type fakeSealer struct{}

func (fakeSealer) Seal(plaintext []byte) (string, error) {
	return "sealed:" + string(plaintext), nil
}

type mockAuthorizer struct {
	err error
}

func (m *mockAuthorizer) AuthorizeAdmin(ctx context.Context, operatorID, credential string) error {
	return m.err
}

type mockRecorder struct {
	actions []string
}

func (m *mockRecorder) Record(ctx context.Context, entry *model.AuditEntry) error {
	m.actions = append(m.actions, entry.Action)
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

type fixture struct {
	sessions   *mockSessionStore
	claimer    *mockClaimer
	picker     *mockPicker
	intents    *mockIntentReader
	visits     *mockVisitRepository
	blocks     *mockBlockRepository
	agreements *mockAgreementRepository
	auth       *mockAuthorizer
	auditor    *mockRecorder
	publisher  *eventPublisher
	service    CommitService
}

func commitTestConfig() *config.Config {
	return &config.Config{
		InitialStayDuration: 6 * time.Hour,
		MaxVisitDuration:    14 * time.Hour,
		BlockRounding:       15 * time.Minute,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func newFixture(session *model.LaneSession) *fixture {
	cfg := commitTestConfig()
	f := &fixture{
		sessions: &mockSessionStore{session: session},
		claimer:  &mockClaimer{},
		picker:   &mockPicker{},
		intents: &mockIntentReader{intent: &model.PaymentIntent{
			ID:            "intent-1",
			LaneSessionID: "sess-1",
			Amount:        4800,
			Status:        model.IntentPaid,
			Quote:         model.Quote{Currency: "USD", Purpose: model.PurposeCheckin},
		}},
		visits:     &mockVisitRepository{},
		blocks:     &mockBlockRepository{},
		agreements: &mockAgreementRepository{},
		auth:       &mockAuthorizer{},
		auditor:    &mockRecorder{},
		publisher:  &eventPublisher{},
	}
	f.service = NewCommitService(
		f.sessions,
		f.claimer,
		f.picker,
		f.intents,
		f.visits,
		f.blocks,
		f.agreements,
		agreement.NewTextRenderer(),
		fakeSealer{},
		f.auth,
		f.auditor,
		f.publisher,
		sessionvalidator.NewSessionValidator(cfg.Log),
		cfg,
	)
	return f
}

func signingSession() *model.LaneSession {
	return &model.LaneSession{
		ID:                 "sess-1",
		LaneID:             "lane-1",
		Status:             model.SessionAwaitingSignature,
		Mode:               model.ModeInitial,
		CustomerID:         "cust-1",
		CustomerName:       "Pat Doe",
		DesiredTier:        model.TierStandard,
		SelectionConfirmed: true,
		ResourceID:         "res-1",
		ResourceKind:       model.KindRoom,
		PaymentIntentID:    "intent-1",
	}
}

func occupiedRoom() *model.Resource {
	return &model.Resource{
		ID:     "res-1",
		Number: 101,
		Kind:   model.KindRoom,
		Tier:   model.TierStandard,
		Status: model.ResourceOccupied,
	}
}

func TestSignAgreement_InitialCreatesVisitAndBlock(t *testing.T) {
	f := newFixture(signingSession())
	f.claimer.claimFunc = func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
		return occupiedRoom(), nil
	}

	before := time.Now().UTC()
	result, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig-bytes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.visits.created) != 1 {
		t.Fatalf("expected a new visit for an initial stay, got %d", len(f.visits.created))
	}
	if len(f.blocks.inserted) != 1 {
		t.Fatalf("expected one occupancy block, got %d", len(f.blocks.inserted))
	}
	block := f.blocks.inserted[0]
	if block.StartTime.Before(before.Add(-time.Second)) {
		t.Errorf("expected initial block to start now, got %v", block.StartTime)
	}
	span := block.EndTime.Sub(block.StartTime)
	if span < 6*time.Hour || span >= 6*time.Hour+15*time.Minute {
		t.Errorf("expected a six hour block rounded up to the quarter hour, got %v", span)
	}
	if block.EndTime.Minute()%15 != 0 || block.EndTime.Second() != 0 {
		t.Errorf("expected end time on a quarter hour boundary, got %v", block.EndTime)
	}
	if block.AgreementID != "agreement-new" {
		t.Errorf("expected block linked to stored agreement, got %q", block.AgreementID)
	}
	if result.Agreement.Signature != "sealed:sig-bytes" {
		t.Errorf("expected sealed signature stored, got %q", result.Agreement.Signature)
	}
	if len(f.sessions.statusUpdates) != 1 || f.sessions.statusUpdates[0] != model.SessionCompleted {
		t.Errorf("expected session completed, got %v", f.sessions.statusUpdates)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0] != "session.completed" {
		t.Errorf("expected completion event, got %v", f.publisher.events)
	}
}

func TestSignAgreement_RenewalChainsFromPriorBlock(t *testing.T) {
	session := signingSession()
	session.Mode = model.ModeRenewal
	f := newFixture(session)
	f.claimer.claimFunc = func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
		return occupiedRoom(), nil
	}

	priorEnd := time.Date(2026, 8, 29, 18, 30, 0, 0, time.UTC)
	f.visits.open = &model.Visit{ID: "visit-1", CustomerID: "cust-1"}
	f.blocks.last = &model.OccupancyBlock{
		VisitID:   "visit-1",
		StartTime: priorEnd.Add(-6 * time.Hour),
		EndTime:   priorEnd,
	}
	f.blocks.total = 6 * time.Hour

	_, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.visits.created) != 0 {
		t.Error("expected renewal to reuse the open visit")
	}
	block := f.blocks.inserted[0]
	if !block.StartTime.Equal(priorEnd) {
		t.Errorf("expected renewal block to start at prior end %v, got %v", priorEnd, block.StartTime)
	}
	if !block.EndTime.Equal(priorEnd.Add(6 * time.Hour)) {
		t.Errorf("expected renewal block to end at %v, got %v", priorEnd.Add(6*time.Hour), block.EndTime)
	}
}

func TestSignAgreement_RenewalRejectsOverMaxStay(t *testing.T) {
	session := signingSession()
	session.Mode = model.ModeRenewal
	f := newFixture(session)
	f.claimer.claimFunc = func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
		return occupiedRoom(), nil
	}

	f.visits.open = &model.Visit{ID: "visit-1", CustomerID: "cust-1"}
	f.blocks.last = &model.OccupancyBlock{
		VisitID:   "visit-1",
		StartTime: time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC),
	}
	f.blocks.total = 9 * time.Hour

	_, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error past the stay ceiling, got %v", err)
	}
	if len(f.blocks.inserted) != 0 {
		t.Error("expected no block past the stay ceiling")
	}
	if f.claimer.claims != 0 {
		t.Errorf("expected the unit untouched when the ceiling rejects, got %d claims", f.claimer.claims)
	}
	if len(f.sessions.statusUpdates) != 0 {
		t.Errorf("expected the session left awaiting signature, got %v", f.sessions.statusUpdates)
	}
}

func TestSignAgreement_InitialOpensFreshVisitDespiteStaleOpen(t *testing.T) {
	f := newFixture(signingSession())
	f.claimer.claimFunc = func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
		return occupiedRoom(), nil
	}

	// A visit never closed by an earlier stay must not absorb the new
	// block or count its blocks against the new stay's ceiling.
	f.visits.open = &model.Visit{ID: "visit-stale", CustomerID: "cust-1"}
	f.blocks.total = 13 * time.Hour

	_, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.visits.created) != 1 {
		t.Fatalf("expected a fresh visit for the initial stay, got %d", len(f.visits.created))
	}
	if len(f.visits.closed) != 1 || f.visits.closed[0] != "visit-stale" {
		t.Errorf("expected the lingering visit closed, got %v", f.visits.closed)
	}
	if f.blocks.inserted[0].VisitID != "visit-new" {
		t.Errorf("expected block on the fresh visit, got %q", f.blocks.inserted[0].VisitID)
	}
}

func TestSignAgreement_RequiresPaidIntent(t *testing.T) {
	f := newFixture(signingSession())
	f.intents.intent.Status = model.IntentDue

	_, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error on unpaid intent, got %v", err)
	}
}

func TestSignAgreement_HeldResourceLostIsConflict(t *testing.T) {
	f := newFixture(signingSession())

	_, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict when the held unit was taken, got %v", err)
	}
	if !f.sessions.cleared {
		t.Error("expected stale resource ref cleared")
	}
	if len(f.blocks.inserted) != 0 {
		t.Error("expected no block after a lost claim")
	}
}

func TestSignAgreement_AutoSelectsWithoutHold(t *testing.T) {
	session := signingSession()
	session.ResourceID = ""
	session.ResourceKind = ""
	f := newFixture(session)
	f.picker.resource = &model.Resource{
		ID:     "res-9",
		Number: 109,
		Kind:   model.KindRoom,
		Tier:   model.TierStandard,
		Status: model.ResourceOccupied,
	}

	result, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.picker.calls != 1 {
		t.Errorf("expected one auto-selection, got %d", f.picker.calls)
	}
	if result.Resource.ID != "res-9" {
		t.Errorf("expected auto-selected unit in result, got %s", result.Resource.ID)
	}
	if len(f.sessions.resourceRefs) != 1 || f.sessions.resourceRefs[0] != "res-9" {
		t.Errorf("expected auto-selected unit recorded on session, got %v", f.sessions.resourceRefs)
	}
}

func TestSignAgreement_NoLiveSessionIsNotFound(t *testing.T) {
	f := newFixture(nil)
	f.sessions.findErr = sessionerrors.ErrNotFound

	_, err := f.service.SignAgreement(context.Background(), "lane-1", &SignAgreementInput{Signature: "sig"})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found after the session settled, got %v", err)
	}
}

func TestOverrideSignature_RequiresAdmin(t *testing.T) {
	f := newFixture(signingSession())
	f.auth.err = apperrors.Forbidden("Invalid admin credential")

	_, err := f.service.OverrideSignature(context.Background(), "lane-1", &OverrideSignatureInput{
		OperatorID: "op-1",
		Credential: "wrong",
		Reason:     "pad unresponsive",
	})
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden on bad credential, got %v", err)
	}
	if len(f.agreements.created) != 0 {
		t.Error("expected no agreement on failed authorization")
	}
}

func TestOverrideSignature_StoresMarkerAndAudit(t *testing.T) {
	f := newFixture(signingSession())
	f.claimer.claimFunc = func(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
		return occupiedRoom(), nil
	}

	result, err := f.service.OverrideSignature(context.Background(), "lane-1", &OverrideSignatureInput{
		OperatorID: "op-1",
		Credential: "1234",
		Reason:     "pad unresponsive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Agreement.Overridden || result.Agreement.OverriddenBy != "op-1" {
		t.Errorf("expected override flagged by op-1, got %+v", result.Agreement)
	}
	if result.Agreement.Signature != model.SignatureOverrideMarker {
		t.Errorf("expected override marker instead of signature, got %q", result.Agreement.Signature)
	}

	found := false
	for _, action := range f.auditor.actions {
		if action == model.AuditManualOverride {
			found = true
		}
	}
	if !found {
		t.Error("expected manual override audit entry")
	}
}
