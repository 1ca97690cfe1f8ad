package service

import (
	"context"
	"errors"
	"time"

	"lanedesk/internal/agreement"
	allocerrors "lanedesk/internal/allocation/errors"
	"lanedesk/internal/audit"
	"lanedesk/internal/broadcast"
	commiterrors "lanedesk/internal/commit/errors"
	"lanedesk/internal/commit/repository"
	sessionerrors "lanedesk/internal/lanesession/errors"
	"lanedesk/internal/policy"
	"lanedesk/pkg/config"
	mongotx "lanedesk/pkg/db/mongo"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type SignAgreementInput struct {
	Signature string `json:"signature" validate:"required"`
	SignedBy  string `json:"signed_by" validate:"omitempty,max=100"`
}

type OverrideSignatureInput struct {
	OperatorID string `json:"operator_id" validate:"required,max=64"`
	Credential string `json:"credential" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=200"`
}

// CommitResult is what the lane shows after the stay is committed.
type CommitResult struct {
	Session   *model.LaneSession    `json:"session"`
	Resource  *model.Resource       `json:"resource"`
	Visit     *model.Visit          `json:"visit"`
	Block     *model.OccupancyBlock `json:"block"`
	Agreement *model.Agreement      `json:"agreement"`
}

// SessionStore is the slice of the lane session repository the commit
// flow needs.
type SessionStore interface {
	FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error)
	SetResourceRef(ctx context.Context, id, resourceID, kind string) error
	ClearResourceRef(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

// ResourceClaimer flips a held or free resource to OCCUPIED with a
// conditional update; a lost race surfaces as ErrClaimLost.
type ResourceClaimer interface {
	ClaimOccupied(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error)
}

// ResourcePicker is the fairness-aware auto-selection path, used when
// the session carries no tentative hold.
type ResourcePicker interface {
	AutoSelect(ctx context.Context, tier, sessionID, customerID string) (*model.Resource, error)
}

type IntentReader interface {
	FindByID(ctx context.Context, id string) (*model.PaymentIntent, error)
}

type SignatureSealer interface {
	Seal(plaintext []byte) (string, error)
}

type InputValidator interface {
	ValidateStruct(s any) error
}

type CommitService interface {
	SignAgreement(ctx context.Context, laneID string, input *SignAgreementInput) (*CommitResult, error)
	OverrideSignature(ctx context.Context, laneID string, input *OverrideSignatureInput) (*CommitResult, error)
}

type commitService struct {
	sessions   SessionStore
	resources  ResourceClaimer
	picker     ResourcePicker
	intents    IntentReader
	visits     repository.VisitRepository
	blocks     repository.OccupancyBlockRepository
	agreements repository.AgreementRepository
	renderer   agreement.Renderer
	sealer     SignatureSealer
	authorizer policy.Authorizer
	auditor    audit.Recorder
	publisher  broadcast.Publisher
	validator  InputValidator
	cfg        *config.Config
}

func NewCommitService(
	sessions SessionStore,
	resources ResourceClaimer,
	picker ResourcePicker,
	intents IntentReader,
	visits repository.VisitRepository,
	blocks repository.OccupancyBlockRepository,
	agreements repository.AgreementRepository,
	renderer agreement.Renderer,
	sealer SignatureSealer,
	authorizer policy.Authorizer,
	auditor audit.Recorder,
	publisher broadcast.Publisher,
	validator InputValidator,
	cfg *config.Config,
) CommitService {
	return &commitService{
		sessions:   sessions,
		resources:  resources,
		picker:     picker,
		intents:    intents,
		visits:     visits,
		blocks:     blocks,
		agreements: agreements,
		renderer:   renderer,
		sealer:     sealer,
		authorizer: authorizer,
		auditor:    auditor,
		publisher:  publisher,
		validator:  validator,
		cfg:        cfg,
	}
}

// SignAgreement is the deferred physical commit: nothing before this
// point has occupied a unit or written a stay record. It re-validates
// the held resource (or auto-selects one), chains the occupancy
// block, stores the sealed signature and completes the session.
func (s *commitService) SignAgreement(ctx context.Context, laneID string, input *SignAgreementInput) (*CommitResult, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		return nil, apperrors.Validation("Invalid signature input", map[string]any{"error": err.Error()})
	}

	sealed, err := s.sealer.Seal([]byte(input.Signature))
	if err != nil {
		return nil, apperrors.Internal("Failed to seal signature payload", err)
	}

	return s.commit(ctx, laneID, sealed, "", model.AuditCommitResource, nil)
}

// OverrideSignature commits without a captured signature. It requires
// an admin credential and leaves a distinct audit trail; the stored
// agreement carries the override marker instead of signature bytes.
func (s *commitService) OverrideSignature(ctx context.Context, laneID string, input *OverrideSignatureInput) (*CommitResult, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		return nil, apperrors.Validation("Invalid override input", map[string]any{"error": err.Error()})
	}
	if err := s.authorizer.AuthorizeAdmin(ctx, input.OperatorID, input.Credential); err != nil {
		return nil, err
	}

	return s.commit(ctx, laneID, model.SignatureOverrideMarker, input.OperatorID,
		model.AuditManualOverride, map[string]any{"reason": input.Reason})
}

func (s *commitService) commit(ctx context.Context, laneID, sealedSignature, overriddenBy, auditAction string, auditAfter map[string]any) (*CommitResult, error) {
	session, err := s.currentSession(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionAwaitingSignature {
		return nil, apperrors.Validation("Payment must be completed before signing", nil)
	}
	if session.CustomerID == "" {
		return nil, apperrors.Validation("Session has no identified customer", nil)
	}

	intent, err := s.paidIntent(ctx, session)
	if err != nil {
		return nil, err
	}

	visit, staleVisit, created, err := s.resolveVisit(ctx, session)
	if err != nil {
		return nil, err
	}

	start, end, err := s.blockWindow(ctx, session, visit)
	if err != nil {
		return nil, err
	}

	// Everything physical happens inside one transaction: the claim
	// that flips the unit OCCUPIED, the visit and agreement writes, the
	// block insert and the status change. The ceiling check above runs
	// first, so a rejected renewal never touches the unit, and an abort
	// anywhere rolls the claim back with the rest.
	var resource *model.Resource
	var signed *model.Agreement
	var block *model.OccupancyBlock
	err = s.sessions.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var txErr error
		resource, txErr = s.resolveResource(sessCtx, session)
		if txErr != nil {
			return txErr
		}

		document, txErr := s.renderer.Render(sessCtx, agreement.RenderData{
			CustomerName: session.CustomerName,
			Tier:         resource.Tier,
			ResourceKind: resource.Kind,
			ResourceNo:   resource.Number,
			StartTime:    start,
			EndTime:      end,
			Amount:       intent.Amount,
			Currency:     intent.Quote.Currency,
			Renewal:      session.Mode == model.ModeRenewal,
		})
		if txErr != nil {
			return apperrors.Internal("Failed to render agreement document", txErr)
		}

		signed = &model.Agreement{
			LaneSessionID: session.ID,
			CustomerID:    session.CustomerID,
			Document:      document,
			Signature:     sealedSignature,
			Overridden:    overriddenBy != "",
			OverriddenBy:  overriddenBy,
		}
		block = &model.OccupancyBlock{
			VisitID:         visit.ID,
			StartTime:       start,
			EndTime:         end,
			Tier:            resource.Tier,
			ResourceID:      resource.ID,
			ResourceKind:    resource.Kind,
			LaneSessionID:   session.ID,
			AgreementSigned: true,
		}

		if staleVisit != nil {
			if txErr := s.visits.Close(sessCtx, staleVisit.ID, start); txErr != nil {
				return apperrors.Internal("Failed to close lingering visit", txErr)
			}
		}
		if created {
			if txErr := s.visits.Create(sessCtx, visit); txErr != nil {
				return apperrors.Internal("Failed to open visit", txErr)
			}
			block.VisitID = visit.ID
		}
		if txErr := s.agreements.Create(sessCtx, signed); txErr != nil {
			return apperrors.Internal("Failed to store agreement", txErr)
		}
		block.AgreementID = signed.ID
		if txErr := s.blocks.Insert(sessCtx, block); txErr != nil {
			return apperrors.Internal("Failed to record occupancy block", txErr)
		}
		if txErr := s.sessions.UpdateStatus(sessCtx, session.ID, model.SessionCompleted); txErr != nil {
			return apperrors.Internal("Failed to complete session", txErr)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, allocerrors.ErrClaimLost) {
			if clearErr := s.sessions.ClearResourceRef(ctx, session.ID); clearErr != nil {
				s.cfg.Log.Error("Failed to clear stale resource ref", "session_id", session.ID, "error", clearErr)
			}
			return nil, apperrors.Conflict("Held resource is no longer available")
		}
		s.cfg.Log.Error("Failed to commit stay", "lane_id", laneID, "session_id", session.ID, "error", err)
		return nil, err
	}
	session.Status = model.SessionCompleted

	if auditAfter == nil {
		auditAfter = map[string]any{}
	}
	auditAfter["resource_id"] = resource.ID
	auditAfter["block_id"] = block.ID
	auditAfter["visit_id"] = visit.ID
	if err := s.auditor.Record(ctx, &model.AuditEntry{
		Actor:         overriddenBy,
		ActorRole:     model.ActorEmployee,
		Action:        auditAction,
		LaneID:        laneID,
		LaneSessionID: session.ID,
		After:         auditAfter,
	}); err != nil {
		s.cfg.Log.Error("Failed to record commit audit entry", "session_id", session.ID, "error", err)
	}

	s.cfg.Log.Info("Stay committed",
		"lane_id", laneID,
		"session_id", session.ID,
		"resource_id", resource.ID,
		"visit_id", visit.ID,
		"mode", session.Mode,
		"overridden", overriddenBy != "",
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventSessionCompleted, block)
	s.publisher.PublishState(ctx, laneID)

	return &CommitResult{
		Session:   session,
		Resource:  resource,
		Visit:     visit,
		Block:     block,
		Agreement: signed,
	}, nil
}

func (s *commitService) paidIntent(ctx context.Context, session *model.LaneSession) (*model.PaymentIntent, error) {
	if session.PaymentIntentID == "" {
		return nil, apperrors.Validation("Session has no payment intent", nil)
	}
	intent, err := s.intents.FindByID(ctx, session.PaymentIntentID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load payment intent", err)
	}
	if intent.Status != model.IntentPaid {
		return nil, apperrors.Validation("Payment intent is not paid", nil)
	}
	return intent, nil
}

// resolveResource turns the tentative hold into real occupancy, or
// auto-selects when the customer never picked a unit. It runs inside
// the commit transaction; a lost claim is returned raw so the caller
// can clear the stale ref after the rollback, outside the aborted
// transaction.
func (s *commitService) resolveResource(ctx context.Context, session *model.LaneSession) (*model.Resource, error) {
	if session.ResourceID != "" {
		resource, err := s.resources.ClaimOccupied(ctx, session.ResourceID, session.ID, session.CustomerID)
		if err != nil {
			if errors.Is(err, allocerrors.ErrClaimLost) {
				return nil, err
			}
			return nil, apperrors.Internal("Failed to claim resource", err)
		}
		return resource, nil
	}

	if session.DesiredTier == "" {
		return nil, apperrors.Validation("Selection must be locked before commit", nil)
	}
	resource, err := s.picker.AutoSelect(ctx, session.DesiredTier, session.ID, session.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetResourceRef(ctx, session.ID, resource.ID, resource.Kind); err != nil {
		s.cfg.Log.Error("Failed to record auto-selected resource", "session_id", session.ID, "error", err)
	}
	return resource, nil
}

// resolveVisit picks the visit the new block belongs to. A renewal
// extends the customer's open visit; an initial stay always opens a
// fresh one, so a lingering open visit never absorbs the new block or
// counts against its ceiling. The stale visit, if any, is closed in
// the commit transaction.
func (s *commitService) resolveVisit(ctx context.Context, session *model.LaneSession) (visit, stale *model.Visit, created bool, err error) {
	open, err := s.visits.FindOpenByCustomer(ctx, session.CustomerID)
	if err != nil && !errors.Is(err, commiterrors.ErrNotFound) {
		return nil, nil, false, apperrors.Internal("Failed to look up open visit", err)
	}

	if session.Mode == model.ModeRenewal {
		if err != nil {
			return nil, nil, false, apperrors.Validation("No open visit to renew", nil)
		}
		return open, nil, false, nil
	}

	if err == nil {
		stale = open
	}
	return &model.Visit{CustomerID: session.CustomerID}, stale, true, nil
}

// blockWindow computes the new block's bounds. An initial block runs
// from now; a renewal block starts exactly where the previous block
// ends, so back-to-back renewals never leave gaps or overlaps. The
// end is rounded up to the configured granularity, and the visit's
// cumulative duration is capped.
func (s *commitService) blockWindow(ctx context.Context, session *model.LaneSession, visit *model.Visit) (time.Time, time.Time, error) {
	var start time.Time
	var zero time.Time

	if session.Mode == model.ModeRenewal && visit.ID != "" {
		last, err := s.blocks.FindLastByVisit(ctx, visit.ID)
		if err != nil {
			if errors.Is(err, commiterrors.ErrNotFound) {
				return zero, zero, apperrors.Validation("Open visit has no block to renew", nil)
			}
			return zero, zero, apperrors.Internal("Failed to load previous block", err)
		}
		start = last.EndTime
	} else {
		start = time.Now().UTC()
	}

	end := roundUp(start.Add(s.cfg.InitialStayDuration), s.cfg.BlockRounding)

	var prior time.Duration
	if visit.ID != "" {
		var err error
		prior, err = s.blocks.SumDurationsByVisit(ctx, visit.ID)
		if err != nil {
			return zero, zero, apperrors.Internal("Failed to total visit duration", err)
		}
	}
	if prior+end.Sub(start) > s.cfg.MaxVisitDuration {
		return zero, zero, apperrors.Validation("Visit would exceed the maximum continuous stay", map[string]any{
			"max": s.cfg.MaxVisitDuration.String(),
		})
	}

	return start, end, nil
}

func (s *commitService) currentSession(ctx context.Context, laneID string) (*model.LaneSession, error) {
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

func roundUp(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t
	}
	rounded := t.Truncate(granularity)
	if rounded.Before(t) {
		rounded = rounded.Add(granularity)
	}
	return rounded
}
