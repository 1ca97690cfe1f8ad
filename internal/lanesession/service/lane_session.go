package service

import (
	"context"
	"errors"
	"time"

	"lanedesk/internal/audit"
	"lanedesk/internal/broadcast"
	"lanedesk/internal/identity"
	sessionerrors "lanedesk/internal/lanesession/errors"
	"lanedesk/internal/lanesession/repository"
	"lanedesk/internal/lanesession/validator"
	"lanedesk/pkg/config"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"
	"lanedesk/pkg/sanitizer"

	"go.mongodb.org/mongo-driver/mongo"
)

type StartSessionInput struct {
	OperatorID         string `json:"operator_id" validate:"omitempty,max=64"`
	ScanHash           string `json:"scan_hash" validate:"omitempty,max=128"`
	CustomerName       string `json:"customer_name" validate:"omitempty,max=100"`
	MembershipNumber   string `json:"membership_number" validate:"omitempty,max=32"`
	Mode               string `json:"mode" validate:"required,oneof=INITIAL RENEWAL"`
	MembershipPurchase bool   `json:"membership_purchase"`
}

type ProposeSelectionInput struct {
	Tier         string `json:"tier" validate:"required,oneof=STANDARD DOUBLE SPECIAL LOCKER"`
	ProposedBy   string `json:"proposed_by" validate:"required,oneof=CUSTOMER EMPLOYEE"`
	WaitlistTier string `json:"waitlist_tier" validate:"omitempty,oneof=STANDARD DOUBLE SPECIAL LOCKER"`
	BackupTier   string `json:"backup_tier" validate:"omitempty,oneof=STANDARD DOUBLE SPECIAL LOCKER"`
}

type ConfirmSelectionInput struct {
	ConfirmedBy string `json:"confirmed_by" validate:"required,oneof=CUSTOMER EMPLOYEE"`
}

type UpdateProfileInput struct {
	OperatorID string `json:"operator_id" validate:"omitempty,max=64"`
	Notes      string `json:"notes" validate:"omitempty,max=2000"`
	Language   string `json:"language" validate:"omitempty,len=2"`
}

// HoldReleaser releases a tentative resource hold; reset uses it so a
// cancelled session never keeps a unit out of candidacy.
type HoldReleaser interface {
	ReleaseHold(ctx context.Context, resourceID, sessionID string) error
}

// DueIntentCanceller cancels the session's open payment intents.
type DueIntentCanceller interface {
	CancelDueBySession(ctx context.Context, sessionID string) error
}

type LaneSessionService interface {
	StartSession(ctx context.Context, laneID string, input *StartSessionInput) (*model.LaneSession, error)
	GetCurrent(ctx context.Context, laneID string) (*model.LaneSession, error)
	ProposeSelection(ctx context.Context, laneID string, input *ProposeSelectionInput) (*model.LaneSession, error)
	ConfirmSelection(ctx context.Context, laneID string, input *ConfirmSelectionInput) (*model.LaneSession, error)
	AcknowledgeSelection(ctx context.Context, laneID, acknowledgedBy string) error
	UpdateCustomerProfile(ctx context.Context, laneID string, input *UpdateProfileInput) error
	KioskAck(ctx context.Context, laneID string) (*model.LaneSession, error)
	Reset(ctx context.Context, laneID, operatorID string) error
}

type laneSessionService struct {
	repo      repository.LaneSessionRepository
	resolver  identity.Resolver
	customers identity.CustomerReader
	writer    identity.CustomerWriter
	holds     HoldReleaser
	intents   DueIntentCanceller
	auditor   audit.Recorder
	publisher broadcast.Publisher
	validator *validator.SessionValidator
	cfg       *config.Config
}

func NewLaneSessionService(
	repo repository.LaneSessionRepository,
	resolver identity.Resolver,
	customers identity.CustomerReader,
	writer identity.CustomerWriter,
	holds HoldReleaser,
	intents DueIntentCanceller,
	auditor audit.Recorder,
	publisher broadcast.Publisher,
	validator *validator.SessionValidator,
	cfg *config.Config,
) LaneSessionService {
	return &laneSessionService{
		repo:      repo,
		resolver:  resolver,
		customers: customers,
		writer:    writer,
		holds:     holds,
		intents:   intents,
		auditor:   auditor,
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *laneSessionService) StartSession(ctx context.Context, laneID string, input *StartSessionInput) (*model.LaneSession, error) {
	if laneID == "" {
		return nil, apperrors.InvalidInput("Lane ID cannot be empty")
	}
	if err := s.validator.ValidateStruct(input); err != nil {
		s.cfg.Log.Warn("Start session validation failed", "lane_id", laneID, "error", err)
		return nil, apperrors.Validation("Invalid start session input", map[string]any{"error": err.Error()})
	}

	if _, err := s.repo.FindCurrentByLane(ctx, laneID); err == nil {
		return nil, apperrors.Conflict("Lane already has an active session")
	} else if !errors.Is(err, sessionerrors.ErrNotFound) {
		return nil, apperrors.Internal("Failed to check lane occupancy", err)
	}

	session := &model.LaneSession{
		LaneID:             laneID,
		Status:             model.SessionActive,
		OperatorID:         input.OperatorID,
		CustomerName:       sanitizer.SanitizeDisplayName(input.CustomerName),
		MembershipNumber:   sanitizer.SanitizeMembershipNumber(input.MembershipNumber),
		Mode:               input.Mode,
		MembershipPurchase: input.MembershipPurchase,
	}

	if input.ScanHash != "" {
		identification, err := s.resolver.ResolveScan(ctx, input.ScanHash, input.CustomerName)
		if err != nil {
			return nil, err
		}
		if identification.Banned {
			return nil, apperrors.Forbidden("Customer is banned")
		}
		session.CustomerID = identification.Customer.ID
		session.CustomerName = identification.Customer.Name
		if session.MembershipNumber == "" {
			session.MembershipNumber = identification.Customer.MembershipNumber
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the race against another start on the same lane.
			return nil, apperrors.Conflict("Lane already has an active session")
		}
		s.cfg.Log.Error("Failed to create lane session", "lane_id", laneID, "error", err)
		return nil, apperrors.Internal("Failed to create lane session", err)
	}

	s.cfg.Log.Info("Lane session started",
		"id", session.ID,
		"lane_id", laneID,
		"mode", session.Mode,
		"customer_id", session.CustomerID,
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventSessionStarted, session)
	s.publisher.PublishState(ctx, laneID)
	return session, nil
}

func (s *laneSessionService) GetCurrent(ctx context.Context, laneID string) (*model.LaneSession, error) {
	if laneID == "" {
		return nil, apperrors.InvalidInput("Lane ID cannot be empty")
	}
	session, err := s.repo.FindCurrentByLane(ctx, laneID)
	if err != nil {
		if errors.Is(err, sessionerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Lane session", laneID)
		}
		return nil, apperrors.Internal("Failed to retrieve lane session", err)
	}
	return session, nil
}

func (s *laneSessionService) ProposeSelection(ctx context.Context, laneID string, input *ProposeSelectionInput) (*model.LaneSession, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		s.cfg.Log.Warn("Proposal validation failed", "lane_id", laneID, "error", err)
		return nil, apperrors.Validation("Invalid selection proposal", map[string]any{"error": err.Error()})
	}

	session, err := s.GetCurrent(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if session.SelectionConfirmed {
		return nil, apperrors.Conflict("Selection is already locked")
	}
	if err := s.checkPastDue(ctx, session, input.ProposedBy); err != nil {
		return nil, err
	}

	// Last writer wins during the PROPOSED phase; there is no merge.
	// A write that lands after a concurrent confirm loses to the lock.
	if err := s.repo.UpdateProposal(ctx, session.ID, input.Tier, input.ProposedBy, input.WaitlistTier, input.BackupTier); err != nil {
		if errors.Is(err, sessionerrors.ErrSelectionLocked) {
			return nil, apperrors.Conflict("Selection is already locked")
		}
		s.cfg.Log.Error("Failed to record proposal", "lane_id", laneID, "error", err)
		return nil, apperrors.Internal("Failed to record selection proposal", err)
	}

	session.ProposedTier = input.Tier
	session.ProposedBy = input.ProposedBy
	if input.WaitlistTier != "" {
		session.WaitlistTier = input.WaitlistTier
	}
	if input.BackupTier != "" {
		session.BackupTier = input.BackupTier
	}

	s.cfg.Log.Info("Selection proposed",
		"id", session.ID,
		"lane_id", laneID,
		"tier", input.Tier,
		"proposed_by", input.ProposedBy,
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventSelectionProposed, session)
	s.publisher.PublishState(ctx, laneID)
	return session, nil
}

func (s *laneSessionService) ConfirmSelection(ctx context.Context, laneID string, input *ConfirmSelectionInput) (*model.LaneSession, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		s.cfg.Log.Warn("Confirmation validation failed", "lane_id", laneID, "error", err)
		return nil, apperrors.Validation("Invalid selection confirmation", map[string]any{"error": err.Error()})
	}

	session, err := s.GetCurrent(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if session.SelectionConfirmed {
		// First confirmer wins; later confirmers see the original lock.
		return session, nil
	}
	if session.ProposedTier == "" {
		return nil, apperrors.Validation("No selection proposal to confirm", nil)
	}
	if err := s.checkPastDue(ctx, session, input.ConfirmedBy); err != nil {
		return nil, err
	}

	locked, err := s.repo.LockSelection(ctx, session.ID, input.ConfirmedBy, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sessionerrors.ErrNotFound) {
			// Another actor committed first; return their lock unchanged.
			current, ferr := s.GetCurrent(ctx, laneID)
			if ferr != nil {
				return nil, ferr
			}
			if current.SelectionConfirmed {
				return current, nil
			}
			return nil, apperrors.Validation("No selection proposal to confirm", nil)
		}
		s.cfg.Log.Error("Failed to lock selection", "lane_id", laneID, "error", err)
		return nil, apperrors.Internal("Failed to confirm selection", err)
	}

	s.cfg.Log.Info("Selection locked",
		"id", locked.ID,
		"lane_id", laneID,
		"tier", locked.DesiredTier,
		"confirmed_by", locked.ConfirmedBy,
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventSelectionLocked, locked)
	s.publisher.PublishState(ctx, laneID)
	return locked, nil
}

// AcknowledgeSelection is a pure signal: it validates the lock and
// emits an event without touching persisted state.
func (s *laneSessionService) AcknowledgeSelection(ctx context.Context, laneID, acknowledgedBy string) error {
	session, err := s.GetCurrent(ctx, laneID)
	if err != nil {
		return err
	}
	if !session.SelectionConfirmed {
		return apperrors.Validation("Selection must be locked before acknowledgement", nil)
	}

	s.publisher.PublishEvent(ctx, laneID, broadcast.EventSelectionAcknowledged, struct {
		SessionID      string `json:"session_id"`
		Tier           string `json:"tier"`
		AcknowledgedBy string `json:"acknowledged_by"`
	}{
		SessionID:      session.ID,
		Tier:           session.DesiredTier,
		AcknowledgedBy: acknowledgedBy,
	})
	return nil
}

// UpdateCustomerProfile lets the operator record notes and language on
// the customer standing at the lane. The session must have an
// identified customer; anonymous walk-ins carry nothing to annotate.
func (s *laneSessionService) UpdateCustomerProfile(ctx context.Context, laneID string, input *UpdateProfileInput) error {
	if err := s.validator.ValidateStruct(input); err != nil {
		s.cfg.Log.Warn("Profile update validation failed", "lane_id", laneID, "error", err)
		return apperrors.Validation("Invalid profile update", map[string]any{"error": err.Error()})
	}

	session, err := s.GetCurrent(ctx, laneID)
	if err != nil {
		return err
	}
	if session.CustomerID == "" {
		return apperrors.Validation("Session has no identified customer", nil)
	}

	notes := sanitizer.SanitizeNotes(input.Notes)
	if err := s.writer.UpdateProfile(ctx, session.CustomerID, notes, input.Language); err != nil {
		s.cfg.Log.Error("Failed to update customer profile", "lane_id", laneID, "customer_id", session.CustomerID, "error", err)
		return apperrors.Internal("Failed to update customer profile", err)
	}

	if err := s.auditor.Record(ctx, &model.AuditEntry{
		Actor:         input.OperatorID,
		ActorRole:     model.ActorEmployee,
		Action:        model.AuditProfileUpdated,
		LaneID:        laneID,
		LaneSessionID: session.ID,
		After:         map[string]any{"notes": notes, "language": input.Language},
	}); err != nil {
		s.cfg.Log.Error("Failed to record profile audit entry", "lane_id", laneID, "error", err)
	}

	s.cfg.Log.Info("Customer profile updated", "lane_id", laneID, "customer_id", session.CustomerID)
	return nil
}

// KioskAck records that the customer tapped done on the kiosk. The
// session keeps running; completion is a separate fact.
func (s *laneSessionService) KioskAck(ctx context.Context, laneID string) (*model.LaneSession, error) {
	session, err := s.GetCurrent(ctx, laneID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.SetKioskAck(ctx, session.ID, now); err != nil {
		s.cfg.Log.Error("Failed to record kiosk ack", "lane_id", laneID, "error", err)
		return nil, apperrors.Internal("Failed to record kiosk acknowledgement", err)
	}
	session.KioskAckAt = &now

	s.publisher.PublishEvent(ctx, laneID, broadcast.EventKioskAck, session)
	s.publisher.PublishState(ctx, laneID)
	return session, nil
}

// Reset cancels the lane's live session: any tentative resource hold
// is released, open intents are cancelled, and the session is forced
// to COMPLETED with every negotiation field cleared. Calling it again
// after completion succeeds without mutation.
func (s *laneSessionService) Reset(ctx context.Context, laneID, operatorID string) error {
	if laneID == "" {
		return apperrors.InvalidInput("Lane ID cannot be empty")
	}

	session, err := s.repo.FindCurrentByLane(ctx, laneID)
	if err != nil {
		if !errors.Is(err, sessionerrors.ErrNotFound) {
			return apperrors.Internal("Failed to retrieve lane session", err)
		}
		if _, err := s.repo.FindMostRecentByLane(ctx, laneID); err != nil {
			if errors.Is(err, sessionerrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Lane session", laneID)
			}
			return apperrors.Internal("Failed to retrieve lane session", err)
		}
		// Already terminal; nothing to do.
		s.cfg.Log.Info("Reset on settled lane ignored", "lane_id", laneID)
		return nil
	}

	before := session.Status
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if session.ResourceID != "" {
			if err := s.holds.ReleaseHold(sessCtx, session.ResourceID, session.ID); err != nil {
				return apperrors.Internal("Failed to release resource hold", err)
			}
		}
		if err := s.intents.CancelDueBySession(sessCtx, session.ID); err != nil {
			return apperrors.Internal("Failed to cancel open payment intents", err)
		}
		if err := s.repo.Reset(sessCtx, session.ID); err != nil {
			return apperrors.Internal("Failed to reset lane session", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to reset lane session", "lane_id", laneID, "error", err)
		return err
	}

	if err := s.auditor.Record(ctx, &model.AuditEntry{
		Actor:         operatorID,
		ActorRole:     model.ActorEmployee,
		Action:        model.AuditSessionReset,
		LaneID:        laneID,
		LaneSessionID: session.ID,
		Before:        map[string]any{"status": before},
		After:         map[string]any{"status": model.SessionCompleted},
	}); err != nil {
		s.cfg.Log.Error("Failed to record reset audit entry", "lane_id", laneID, "error", err)
	}

	s.cfg.Log.Info("Lane session reset", "id", session.ID, "lane_id", laneID, "operator_id", operatorID)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventSessionReset, nil)
	s.publisher.PublishState(ctx, laneID)
	return nil
}

// checkPastDue enforces the customer-side block: a customer with an
// outstanding balance may neither propose nor confirm until staff
// bypass or the balance is settled. Staff actions are never blocked.
func (s *laneSessionService) checkPastDue(ctx context.Context, session *model.LaneSession, actor string) error {
	if actor != model.ActorCustomer || session.PastDueBypassed || session.CustomerID == "" {
		return nil
	}

	customer, err := s.customers.FindByID(ctx, session.CustomerID)
	if err != nil {
		return apperrors.Internal("Failed to check customer balance", err)
	}
	if customer.PastDueBalance > 0 {
		return apperrors.Forbidden("Customer has an outstanding past-due balance")
	}
	return nil
}
