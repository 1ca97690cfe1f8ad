package service

import (
	"context"
	"errors"
	"time"

	"lanedesk/internal/audit"
	"lanedesk/internal/broadcast"
	"lanedesk/internal/identity"
	sessionerrors "lanedesk/internal/lanesession/errors"
	paymenterrors "lanedesk/internal/payment/errors"
	"lanedesk/internal/payment/repository"
	"lanedesk/internal/policy"
	"lanedesk/internal/pricing"
	"lanedesk/pkg/config"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type MarkPaidInput struct {
	Method string `json:"method" validate:"omitempty,max=32"`
}

type TakePaymentInput struct {
	Method        string `json:"method" validate:"omitempty,max=32"`
	Outcome       string `json:"outcome" validate:"required,oneof=SUCCESS FAILURE"`
	FailureReason string `json:"failure_reason" validate:"omitempty,max=200"`
}

type BypassPastDueInput struct {
	OperatorID string `json:"operator_id" validate:"required,max=64"`
	Credential string `json:"credential" validate:"required"`
}

type MarkPaidResult struct {
	Intent      *model.PaymentIntent `json:"intent"`
	AlreadyPaid bool                 `json:"already_paid"`
}

// SessionStore is the slice of the lane session repository payments
// need.
type SessionStore interface {
	FindByID(ctx context.Context, id string) (*model.LaneSession, error)
	FindNonTerminalByID(ctx context.Context, id string) (*model.LaneSession, error)
	FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error)
	SetPaymentRef(ctx context.Context, id, intentID string, quote *model.Quote) error
	UpdateStatus(ctx context.Context, id, status string) error
	SetPastDueBypass(ctx context.Context, id, bypassedBy string, at time.Time) error
}

type InputValidator interface {
	ValidateStruct(s any) error
}

type PaymentService interface {
	CreateIntent(ctx context.Context, laneID string) (*model.PaymentIntent, error)
	CreateSettlementIntent(ctx context.Context, laneID string) (*model.PaymentIntent, error)
	MarkPaid(ctx context.Context, intentID string, input *MarkPaidInput) (*MarkPaidResult, error)
	TakePayment(ctx context.Context, intentID string, input *TakePaymentInput) (*MarkPaidResult, error)
	BypassPastDue(ctx context.Context, laneID string, input *BypassPastDueInput) (*model.LaneSession, error)
}

type paymentService struct {
	intents    repository.PaymentIntentRepository
	sessions   SessionStore
	customers  identity.CustomerReader
	writer     identity.CustomerWriter
	quoter     pricing.Quoter
	authorizer policy.Authorizer
	auditor    audit.Recorder
	publisher  broadcast.Publisher
	validator  InputValidator
	cfg        *config.Config
}

func NewPaymentService(
	intents repository.PaymentIntentRepository,
	sessions SessionStore,
	customers identity.CustomerReader,
	writer identity.CustomerWriter,
	quoter pricing.Quoter,
	authorizer policy.Authorizer,
	auditor audit.Recorder,
	publisher broadcast.Publisher,
	validator InputValidator,
	cfg *config.Config,
) PaymentService {
	return &paymentService{
		intents:    intents,
		sessions:   sessions,
		customers:  customers,
		writer:     writer,
		quoter:     quoter,
		authorizer: authorizer,
		auditor:    auditor,
		publisher:  publisher,
		validator:  validator,
		cfg:        cfg,
	}
}

// CreateIntent prices the locked selection and leaves the session with
// exactly one DUE intent: an existing one is reused and re-priced, and
// any stragglers are cancelled in the same transaction.
func (s *paymentService) CreateIntent(ctx context.Context, laneID string) (*model.PaymentIntent, error) {
	session, err := s.currentSession(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if !session.SelectionConfirmed || session.DesiredTier == "" {
		return nil, apperrors.Validation("Selection must be locked before payment", nil)
	}

	input := pricing.QuoteInput{
		Tier:               session.DesiredTier,
		Purpose:            model.PurposeCheckin,
		MembershipPurchase: session.MembershipPurchase,
	}
	if session.CustomerID != "" {
		customer, err := s.customers.FindByID(ctx, session.CustomerID)
		if err != nil {
			return nil, apperrors.Internal("Failed to load customer for pricing", err)
		}
		now := time.Now()
		input.CustomerAge = customer.Age(now)
		input.MembershipActive = customer.MembershipTier != "" &&
			(customer.MembershipExpiry == nil || customer.MembershipExpiry.After(now))
	}

	quote, err := s.quoter.Quote(ctx, input)
	if err != nil {
		return nil, err
	}

	intent, err := s.upsertDueIntent(ctx, session, quote)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Payment intent created",
		"id", intent.ID,
		"lane_id", laneID,
		"session_id", session.ID,
		"amount", intent.Amount,
		"purpose", quote.Purpose,
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventPaymentIntentCreated, intent)
	s.publisher.PublishState(ctx, laneID)
	return intent, nil
}

// CreateSettlementIntent prices the customer's outstanding balance.
// Marking it paid zeroes the balance; the session is not advanced.
func (s *paymentService) CreateSettlementIntent(ctx context.Context, laneID string) (*model.PaymentIntent, error) {
	session, err := s.currentSession(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if session.CustomerID == "" {
		return nil, apperrors.Validation("Session has no identified customer", nil)
	}

	customer, err := s.customers.FindByID(ctx, session.CustomerID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load customer", err)
	}
	if customer.PastDueBalance <= 0 {
		return nil, apperrors.Validation("No past-due balance to settle", nil)
	}

	quote := &model.Quote{
		Amount:   customer.PastDueBalance,
		Currency: "USD",
		Purpose:  model.PurposeSettlement,
		Lines: []model.QuoteLine{
			{Label: "Past-due settlement", Amount: customer.PastDueBalance},
		},
	}

	intent, err := s.upsertDueIntent(ctx, session, quote)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Settlement intent created",
		"id", intent.ID,
		"lane_id", laneID,
		"customer_id", customer.ID,
		"amount", intent.Amount,
	)
	s.publisher.PublishEvent(ctx, laneID, broadcast.EventPaymentIntentCreated, intent)
	s.publisher.PublishState(ctx, laneID)
	return intent, nil
}

// upsertDueIntent enforces the one-DUE-intent invariant inside one
// transaction.
func (s *paymentService) upsertDueIntent(ctx context.Context, session *model.LaneSession, quote *model.Quote) (*model.PaymentIntent, error) {
	var intent *model.PaymentIntent

	err := s.intents.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		existing, err := s.intents.FindDueBySession(sessCtx, session.ID)
		if err != nil {
			return apperrors.Internal("Failed to check existing payment intents", err)
		}

		if len(existing) > 0 {
			intent = existing[0]
			if err := s.intents.Reprice(sessCtx, intent.ID, quote.Amount, quote); err != nil {
				return apperrors.Internal("Failed to reprice payment intent", err)
			}
			intent.Amount = quote.Amount
			intent.Quote = *quote
			if err := s.intents.CancelOthers(sessCtx, session.ID, intent.ID); err != nil {
				return apperrors.Internal("Failed to cancel stale payment intents", err)
			}
		} else {
			intent = &model.PaymentIntent{
				LaneSessionID: session.ID,
				Amount:        quote.Amount,
				Status:        model.IntentDue,
				Quote:         *quote,
			}
			if err := s.intents.Create(sessCtx, intent); err != nil {
				return apperrors.Internal("Failed to create payment intent", err)
			}
		}

		if err := s.sessions.SetPaymentRef(sessCtx, session.ID, intent.ID, quote); err != nil {
			return apperrors.Internal("Failed to record payment reference", err)
		}
		if session.Status != model.SessionAwaitingPayment {
			if err := s.sessions.UpdateStatus(sessCtx, session.ID, model.SessionAwaitingPayment); err != nil {
				return apperrors.Internal("Failed to advance session to payment", err)
			}
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to upsert payment intent", "session_id", session.ID, "error", err)
		return nil, err
	}

	session.PaymentIntentID = intent.ID
	session.QuoteSnapshot = quote
	session.Status = model.SessionAwaitingPayment
	return intent, nil
}

// MarkPaid is idempotent: a second call on a PAID intent reports
// already-paid and does nothing further. Completion effects dispatch
// on the quote's purpose, a closed variant.
func (s *paymentService) MarkPaid(ctx context.Context, intentID string, input *MarkPaidInput) (*MarkPaidResult, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		return nil, apperrors.Validation("Invalid payment input", map[string]any{"error": err.Error()})
	}

	intent, err := s.findIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == model.IntentPaid {
		return &MarkPaidResult{Intent: intent, AlreadyPaid: true}, nil
	}
	if intent.Status == model.IntentCancelled {
		return nil, apperrors.Conflict("Payment intent is cancelled")
	}

	paid, err := s.intents.MarkPaid(ctx, intentID, input.Method, time.Now().UTC())
	if err != nil {
		if errors.Is(err, paymenterrors.ErrNotFound) {
			// Raced with another terminal; re-read and report.
			current, ferr := s.findIntent(ctx, intentID)
			if ferr != nil {
				return nil, ferr
			}
			if current.Status == model.IntentPaid {
				return &MarkPaidResult{Intent: current, AlreadyPaid: true}, nil
			}
			return nil, apperrors.Conflict("Payment intent is cancelled")
		}
		s.cfg.Log.Error("Failed to mark payment intent paid", "id", intentID, "error", err)
		return nil, apperrors.Internal("Failed to mark payment paid", err)
	}

	session, err := s.sessions.FindByID(ctx, paid.LaneSessionID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load owning session", err)
	}

	if err := s.applyPurpose(ctx, paid, session); err != nil {
		return nil, err
	}

	if err := s.auditor.Record(ctx, &model.AuditEntry{
		ActorRole:     model.ActorEmployee,
		Action:        model.AuditPaymentCompleted,
		LaneID:        session.LaneID,
		LaneSessionID: session.ID,
		After: map[string]any{
			"intent_id": paid.ID,
			"amount":    paid.Amount,
			"purpose":   paid.Quote.Purpose,
			"method":    paid.Method,
		},
	}); err != nil {
		s.cfg.Log.Error("Failed to record payment audit entry", "intent_id", paid.ID, "error", err)
	}

	s.cfg.Log.Info("Payment completed",
		"intent_id", paid.ID,
		"session_id", session.ID,
		"purpose", paid.Quote.Purpose,
		"amount", paid.Amount,
	)
	s.publisher.PublishEvent(ctx, session.LaneID, broadcast.EventPaymentPaid, paid)
	s.publisher.PublishState(ctx, session.LaneID)
	return &MarkPaidResult{Intent: paid}, nil
}

// applyPurpose dispatches completion effects. Every purpose is
// handled explicitly; a purpose this switch does not know is a bug,
// not a fallthrough.
func (s *paymentService) applyPurpose(ctx context.Context, intent *model.PaymentIntent, session *model.LaneSession) error {
	switch intent.Quote.Purpose {
	case model.PurposeCheckin:
		// Advance only while the session is still live. A payment
		// confirmed after the lane was reset records the money but
		// must not pull a settled session back into the workflow.
		if _, err := s.sessions.FindNonTerminalByID(ctx, session.ID); err != nil {
			if errors.Is(err, sessionerrors.ErrNotFound) {
				s.cfg.Log.Warn("Check-in payment on settled session",
					"session_id", session.ID,
					"intent_id", intent.ID,
				)
				return nil
			}
			return apperrors.Internal("Failed to recheck session status", err)
		}
		if err := s.sessions.UpdateStatus(ctx, session.ID, model.SessionAwaitingSignature); err != nil {
			return apperrors.Internal("Failed to advance session to signature", err)
		}
		session.Status = model.SessionAwaitingSignature
		if session.MembershipPurchase && session.CustomerID != "" {
			expiry := time.Now().UTC().AddDate(1, 0, 0)
			if err := s.writer.GrantMembership(ctx, session.CustomerID, "MEMBER", expiry); err != nil {
				s.cfg.Log.Error("Failed to grant purchased membership", "customer_id", session.CustomerID, "error", err)
			}
		}
		return nil

	case model.PurposeUpgrade, model.PurposeFinalExtension:
		// Completion markers for flows owned elsewhere; the lane
		// session status is untouched.
		s.cfg.Log.Info("Out-of-band payment recorded",
			"intent_id", intent.ID,
			"purpose", intent.Quote.Purpose,
		)
		return nil

	case model.PurposeSettlement:
		if session.CustomerID == "" {
			return apperrors.Internal("Settlement intent on session without customer", nil)
		}
		if err := s.writer.SettlePastDue(ctx, session.CustomerID); err != nil {
			return apperrors.Internal("Failed to settle past-due balance", err)
		}
		if err := s.auditor.Record(ctx, &model.AuditEntry{
			ActorRole:     model.ActorEmployee,
			Action:        model.AuditPastDueSettled,
			LaneID:        session.LaneID,
			LaneSessionID: session.ID,
			After:         map[string]any{"customer_id": session.CustomerID, "amount": intent.Amount},
		}); err != nil {
			s.cfg.Log.Error("Failed to record settlement audit entry", "intent_id", intent.ID, "error", err)
		}
		return nil

	default:
		return apperrors.Internal("Unhandled payment purpose: "+string(intent.Quote.Purpose), nil)
	}
}

// TakePayment is the manual terminal flow: the operator reports the
// outcome. Success delegates to MarkPaid; failure is recorded on the
// intent, which stays DUE for another attempt.
func (s *paymentService) TakePayment(ctx context.Context, intentID string, input *TakePaymentInput) (*MarkPaidResult, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		return nil, apperrors.Validation("Invalid payment input", map[string]any{"error": err.Error()})
	}

	if input.Outcome == "SUCCESS" {
		return s.MarkPaid(ctx, intentID, &MarkPaidInput{Method: input.Method})
	}

	intent, err := s.findIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.IntentDue {
		return nil, apperrors.Conflict("Payment intent is not open")
	}

	reason := input.FailureReason
	if reason == "" {
		reason = "declined"
	}
	now := time.Now().UTC()
	if err := s.intents.RecordFailure(ctx, intentID, reason, now); err != nil {
		s.cfg.Log.Error("Failed to record payment failure", "intent_id", intentID, "error", err)
		return nil, apperrors.Internal("Failed to record payment failure", err)
	}
	intent.FailureReason = reason
	intent.FailedAt = &now

	s.cfg.Log.Info("Payment attempt failed", "intent_id", intentID, "reason", reason)
	return &MarkPaidResult{Intent: intent}, nil
}

// BypassPastDue lifts the customer-side past-due block for this
// session only, after the policy check clears the operator.
func (s *paymentService) BypassPastDue(ctx context.Context, laneID string, input *BypassPastDueInput) (*model.LaneSession, error) {
	if err := s.validator.ValidateStruct(input); err != nil {
		return nil, apperrors.Validation("Invalid bypass input", map[string]any{"error": err.Error()})
	}
	if err := s.authorizer.AuthorizeAdmin(ctx, input.OperatorID, input.Credential); err != nil {
		return nil, err
	}

	session, err := s.currentSession(ctx, laneID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.sessions.SetPastDueBypass(ctx, session.ID, input.OperatorID, now); err != nil {
		return nil, apperrors.Internal("Failed to record past-due bypass", err)
	}
	session.PastDueBypassed = true
	session.PastDueBypassedBy = input.OperatorID
	session.PastDueBypassedAt = &now

	if err := s.auditor.Record(ctx, &model.AuditEntry{
		Actor:         input.OperatorID,
		ActorRole:     model.ActorEmployee,
		Action:        model.AuditPastDueBypass,
		LaneID:        laneID,
		LaneSessionID: session.ID,
	}); err != nil {
		s.cfg.Log.Error("Failed to record bypass audit entry", "lane_id", laneID, "error", err)
	}

	s.cfg.Log.Info("Past-due block bypassed", "lane_id", laneID, "operator_id", input.OperatorID)
	s.publisher.PublishState(ctx, laneID)
	return session, nil
}

func (s *paymentService) currentSession(ctx context.Context, laneID string) (*model.LaneSession, error) {
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

func (s *paymentService) findIntent(ctx context.Context, intentID string) (*model.PaymentIntent, error) {
	if intentID == "" {
		return nil, apperrors.InvalidInput("Payment intent ID cannot be empty")
	}
	intent, err := s.intents.FindByID(ctx, intentID)
	if err != nil {
		if errors.Is(err, paymenterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Payment intent", intentID)
		}
		if errors.Is(err, paymenterrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid payment intent ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve payment intent", err)
	}
	return intent, nil
}
