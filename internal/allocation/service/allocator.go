package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	allocerrors "lanedesk/internal/allocation/errors"
	"lanedesk/internal/allocation/repository"
	"lanedesk/internal/audit"
	"lanedesk/internal/broadcast"
	sessionerrors "lanedesk/internal/lanesession/errors"
	"lanedesk/pkg/config"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

type AssignResourceInput struct {
	Kind       string `json:"kind" validate:"required,oneof=room locker"`
	ResourceID string `json:"resource_id" validate:"required,mongodb"`
	OperatorID string `json:"operator_id" validate:"omitempty,max=64"`
}

type ConfirmResourceInput struct {
	Accept      bool   `json:"accept"`
	ConfirmedBy string `json:"confirmed_by" validate:"required,oneof=CUSTOMER EMPLOYEE"`
}

type AssignmentResult struct {
	Session              *model.LaneSession `json:"session"`
	Resource             *model.Resource    `json:"resource"`
	ConfirmationRequired bool               `json:"confirmation_required"`
}

// SessionStore is the slice of the lane session repository the
// allocator needs.
type SessionStore interface {
	FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error)
	SetResourceRef(ctx context.Context, id, resourceID, kind string) error
	ClearResourceRef(ctx context.Context, id string) error
}

type InputValidator interface {
	ValidateStruct(s any) error
}

type AllocatorService interface {
	AssignResource(ctx context.Context, laneID string, input *AssignResourceInput) (*AssignmentResult, error)
	ConfirmResource(ctx context.Context, laneID string, input *ConfirmResourceInput) (*model.LaneSession, error)
	AutoSelect(ctx context.Context, tier, sessionID, customerID string) (*model.Resource, error)
}

type allocatorService struct {
	resources repository.ResourceRepository
	waitlist  repository.WaitlistRepository
	locks     repository.LaneLockRepository
	sessions  SessionStore
	auditor   audit.Recorder
	publisher broadcast.Publisher
	validator InputValidator
	cfg       *config.Config
}

func NewAllocatorService(
	resources repository.ResourceRepository,
	waitlist repository.WaitlistRepository,
	locks repository.LaneLockRepository,
	sessions SessionStore,
	auditor audit.Recorder,
	publisher broadcast.Publisher,
	validator InputValidator,
	cfg *config.Config,
) AllocatorService {
	return &allocatorService{
		resources: resources,
		waitlist:  waitlist,
		locks:     locks,
		sessions:  sessions,
		auditor:   auditor,
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
	}
}

// AssignResource records a tentative assignment: the session gets the
// resource reference and the resource gets an invisible hold, but its
// status and assignee stay untouched until commit. Exactly one of N
// concurrent assigns on the same unit succeeds.
func (s *allocatorService) AssignResource(ctx context.Context, laneID string, input *AssignResourceInput) (*AssignmentResult, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		s.cfg.Log.Warn("Assign resource validation failed", "lane_id", laneID, "error", err)
		return nil, apperrors.Validation("Invalid assignment input", map[string]any{"error": err.Error()})
	}

	session, err := s.currentSession(ctx, laneID)
	if err != nil {
		return nil, err
	}

	resource, err := s.resources.FindByID(ctx, input.ResourceID)
	if err != nil {
		if errors.Is(err, allocerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Resource", input.ResourceID)
		}
		if errors.Is(err, allocerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid resource ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve resource", err)
	}
	if resource.Kind != input.Kind {
		return nil, apperrors.Validation("Resource kind mismatch", map[string]any{
			"requested": input.Kind,
			"actual":    resource.Kind,
		})
	}
	if resource.Status != model.ResourceClean {
		return nil, apperrors.Validation("Resource is not clean", map[string]any{"status": resource.Status})
	}
	if resource.AssignedCustomer != "" || (resource.HeldBySession != "" && resource.HeldBySession != session.ID) {
		return nil, apperrors.Conflict("Resource is already assigned")
	}

	held, err := s.resources.HoldResource(ctx, input.ResourceID, session.ID)
	if err != nil {
		if errors.Is(err, allocerrors.ErrClaimLost) {
			// Lost the race. Tell idle observers too, best-effort.
			s.publisher.PublishEvent(ctx, laneID, broadcast.EventAssignmentFailed, struct {
				SessionID  string `json:"session_id"`
				ResourceID string `json:"resource_id"`
				Reason     string `json:"reason"`
			}{session.ID, input.ResourceID, "already assigned"})
			return nil, apperrors.Conflict("Resource is already assigned")
		}
		s.cfg.Log.Error("Failed to hold resource", "lane_id", laneID, "resource_id", input.ResourceID, "error", err)
		return nil, apperrors.Internal("Failed to assign resource", err)
	}

	// Swapping units releases the previous hold.
	if session.ResourceID != "" && session.ResourceID != held.ID {
		if err := s.resources.ReleaseHold(ctx, session.ResourceID, session.ID); err != nil {
			s.cfg.Log.Warn("Failed to release previous hold", "resource_id", session.ResourceID, "error", err)
		}
	}

	if err := s.sessions.SetResourceRef(ctx, session.ID, held.ID, held.Kind); err != nil {
		return nil, apperrors.Internal("Failed to record assignment on session", err)
	}
	session.ResourceID = held.ID
	session.ResourceKind = held.Kind

	if err := s.auditor.Record(ctx, &model.AuditEntry{
		Actor:         input.OperatorID,
		ActorRole:     model.ActorEmployee,
		Action:        model.AuditAssignResource,
		LaneID:        laneID,
		LaneSessionID: session.ID,
		After:         map[string]any{"resource_id": held.ID, "number": held.Number, "tier": held.Tier},
	}); err != nil {
		s.cfg.Log.Error("Failed to record assignment audit entry", "lane_id", laneID, "error", err)
	}

	confirmationRequired := session.DesiredTier != "" && held.Tier != session.DesiredTier

	s.cfg.Log.Info("Resource tentatively assigned",
		"lane_id", laneID,
		"session_id", session.ID,
		"resource_id", held.ID,
		"number", held.Number,
		"confirmation_required", confirmationRequired,
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventAssignmentCreated, held)
	if confirmationRequired {
		s.publisher.PublishEvent(ctx, laneID, broadcast.EventConfirmationRequired, struct {
			DesiredTier  string `json:"desired_tier"`
			ResourceTier string `json:"resource_tier"`
		}{session.DesiredTier, held.Tier})
	}
	s.publisher.PublishState(ctx, laneID)

	return &AssignmentResult{
		Session:              session,
		Resource:             held,
		ConfirmationRequired: confirmationRequired,
	}, nil
}

// ConfirmResource resolves the accept/decline step after a
// tier-mismatched tentative assignment. Declining releases the hold;
// the resource was never physically committed, so nothing else moves.
func (s *allocatorService) ConfirmResource(ctx context.Context, laneID string, input *ConfirmResourceInput) (*model.LaneSession, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		s.cfg.Log.Warn("Confirm resource validation failed", "lane_id", laneID, "error", err)
		return nil, apperrors.Validation("Invalid confirmation input", map[string]any{"error": err.Error()})
	}

	session, err := s.currentSession(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if session.ResourceID == "" {
		return nil, apperrors.Validation("No tentative assignment to confirm", nil)
	}

	if input.Accept {
		s.cfg.Log.Info("Tentative assignment accepted", "lane_id", laneID, "resource_id", session.ResourceID)
		s.publisher.PublishEvent(ctx, laneID, broadcast.EventCustomerConfirmed, session)
		s.publisher.PublishState(ctx, laneID)
		return session, nil
	}

	if err := s.resources.ReleaseHold(ctx, session.ResourceID, session.ID); err != nil {
		s.cfg.Log.Error("Failed to release declined hold", "resource_id", session.ResourceID, "error", err)
		return nil, apperrors.Internal("Failed to release declined assignment", err)
	}
	if err := s.sessions.ClearResourceRef(ctx, session.ID); err != nil {
		return nil, apperrors.Internal("Failed to clear assignment from session", err)
	}

	if err := s.auditor.Record(ctx, &model.AuditEntry{
		ActorRole:     input.ConfirmedBy,
		Action:        model.AuditReleaseResource,
		LaneID:        laneID,
		LaneSessionID: session.ID,
		Before:        map[string]any{"resource_id": session.ResourceID},
	}); err != nil {
		s.cfg.Log.Error("Failed to record release audit entry", "lane_id", laneID, "error", err)
	}

	session.ResourceID = ""
	session.ResourceKind = ""

	s.cfg.Log.Info("Tentative assignment declined", "lane_id", laneID, "session_id", session.ID)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventCustomerDeclined, session)
	s.publisher.PublishState(ctx, laneID)
	return session, nil
}

// AutoSelect picks and physically claims a unit for the tier using the
// fairness rule: the first demandCount available units stay implicitly
// reserved for customers already queued, so the walk-in takes the
// (demandCount+1)-th candidate by ascending number. A unit claimed by
// a concurrent lane mid-iteration is skipped, not waited on. The
// advisory tier lock closes the window where two lanes could compute
// the same demand count before either claims.
func (s *allocatorService) AutoSelect(ctx context.Context, tier, sessionID, customerID string) (*model.Resource, error) {
	lockID := fmt.Sprintf("autoselect_%s", tier)
	lock := &model.LaneLock{
		ID:        lockID,
		Owner:     uuid.NewString(),
		ExpiresAt: time.Now().Add(s.cfg.LaneLockTTL),
	}
	if err := s.locks.Acquire(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.Conflict("Another lane is selecting a unit for this tier. Please retry.")
		}
		return nil, apperrors.Internal("Failed to acquire selection lock", err)
	}
	defer func() {
		if err := s.locks.Release(ctx, lockID); err != nil {
			s.cfg.Log.Warn("Failed to release selection lock", "lock_id", lockID, "error", err)
		}
	}()

	now := time.Now().UTC()
	demand, err := s.waitlist.CountActiveDemand(ctx, tier, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to compute waitlist demand", err)
	}
	reserved, err := s.waitlist.ReservedResourceIDs(ctx, tier)
	if err != nil {
		return nil, apperrors.Internal("Failed to collect reserved resources", err)
	}
	candidates, err := s.resources.FindAvailableByTier(ctx, tier, reserved)
	if err != nil {
		return nil, apperrors.Internal("Failed to list available resources", err)
	}
	if int64(len(candidates)) <= demand {
		return nil, apperrors.Conflict("No available resources for tier")
	}

	for _, candidate := range candidates[demand:] {
		resource, err := s.resources.ClaimOccupied(ctx, candidate.ID, sessionID, customerID)
		if err != nil {
			if errors.Is(err, allocerrors.ErrClaimLost) {
				continue
			}
			return nil, apperrors.Internal("Failed to claim resource", err)
		}
		s.cfg.Log.Info("Resource auto-selected",
			"tier", tier,
			"resource_id", resource.ID,
			"number", resource.Number,
			"waitlist_demand", demand,
		)
		return resource, nil
	}
	return nil, apperrors.Conflict("No available resources for tier")
}

func (s *allocatorService) currentSession(ctx context.Context, laneID string) (*model.LaneSession, error) {
	if laneID == "" {
		return nil, apperrors.InvalidInput("Lane ID cannot be empty")
	}
	session, err := s.sessions.FindCurrentByLane(ctx, laneID)
	if err != nil {
		if errors.Is(err, sessionerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Lane session", laneID)
		}
		return nil, apperrors.Internal("Failed to retrieve lane session", err)
	}
	return session, nil
}
