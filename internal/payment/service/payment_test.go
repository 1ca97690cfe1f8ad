package service

import (
	"context"
	"testing"
	"time"

	sessionerrors "lanedesk/internal/lanesession/errors"
	sessionvalidator "lanedesk/internal/lanesession/validator"
	paymenterrors "lanedesk/internal/payment/errors"
	"lanedesk/internal/pricing"
	"lanedesk/pkg/config"
	mongotx "lanedesk/pkg/db/mongo"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/logger"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

type mockIntentRepository struct {
	createFunc        func(ctx context.Context, intent *model.PaymentIntent) error
	findByIDFunc      func(ctx context.Context, id string) (*model.PaymentIntent, error)
	findDueFunc       func(ctx context.Context, sessionID string) ([]*model.PaymentIntent, error)
	markPaidFunc      func(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error)
	recordFailureFunc func(ctx context.Context, id, reason string, at time.Time) error

	repriced        []string
	cancelledOthers []string
	created         []*model.PaymentIntent
}

func (m *mockIntentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, intent)
	}
	intent.ID = "intent-new"
	m.created = append(m.created, intent)
	return nil
}

func (m *mockIntentRepository) FindByID(ctx context.Context, id string) (*model.PaymentIntent, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, paymenterrors.ErrNotFound
}

func (m *mockIntentRepository) FindDueBySession(ctx context.Context, sessionID string) ([]*model.PaymentIntent, error) {
	if m.findDueFunc != nil {
		return m.findDueFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockIntentRepository) Reprice(ctx context.Context, id string, amount int64, quote *model.Quote) error {
	m.repriced = append(m.repriced, id)
	return nil
}

func (m *mockIntentRepository) CancelOthers(ctx context.Context, sessionID, keepID string) error {
	m.cancelledOthers = append(m.cancelledOthers, keepID)
	return nil
}

func (m *mockIntentRepository) CancelDueBySession(ctx context.Context, sessionID string) error {
	return nil
}

func (m *mockIntentRepository) MarkPaid(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error) {
	if m.markPaidFunc != nil {
		return m.markPaidFunc(ctx, id, method, at)
	}
	return nil, paymenterrors.ErrNotFound
}

func (m *mockIntentRepository) RecordFailure(ctx context.Context, id, reason string, at time.Time) error {
	if m.recordFailureFunc != nil {
		return m.recordFailureFunc(ctx, id, reason, at)
	}
	return nil
}

func (m *mockIntentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type mockSessionStore struct {
	session *model.LaneSession
	settled bool

	statusUpdates []string
	paymentRefs   []string
	bypassed      bool
}

func (m *mockSessionStore) FindByID(ctx context.Context, id string) (*model.LaneSession, error) {
	return m.session, nil
}

func (m *mockSessionStore) FindNonTerminalByID(ctx context.Context, id string) (*model.LaneSession, error) {
	if m.settled {
		return nil, sessionerrors.ErrNotFound
	}
	return m.session, nil
}

func (m *mockSessionStore) FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error) {
	return m.session, nil
}

func (m *mockSessionStore) SetPaymentRef(ctx context.Context, id, intentID string, quote *model.Quote) error {
	m.paymentRefs = append(m.paymentRefs, intentID)
	return nil
}

func (m *mockSessionStore) UpdateStatus(ctx context.Context, id, status string) error {
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockSessionStore) SetPastDueBypass(ctx context.Context, id, bypassedBy string, at time.Time) error {
	m.bypassed = true
	return nil
}

type mockCustomerReader struct {
	customer *model.Customer
}

func (m *mockCustomerReader) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	return m.customer, nil
}

type mockCustomerWriter struct {
	settled []string
	granted []string
}

func (m *mockCustomerWriter) UpdateProfile(ctx context.Context, id, notes, language string) error {
	return nil
}

func (m *mockCustomerWriter) SettlePastDue(ctx context.Context, id string) error {
	m.settled = append(m.settled, id)
	return nil
}

func (m *mockCustomerWriter) GrantMembership(ctx context.Context, id, tier string, expiry time.Time) error {
	m.granted = append(m.granted, id)
	return nil
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

func (m *mockRecorder) has(action string) bool {
	for _, a := range m.actions {
		if a == action {
			return true
		}
	}
	return false
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

func paymentTestConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

type fixture struct {
	intents   *mockIntentRepository
	sessions  *mockSessionStore
	customers *mockCustomerReader
	writer    *mockCustomerWriter
	auth      *mockAuthorizer
	auditor   *mockRecorder
	publisher *eventPublisher
	service   PaymentService
}

func newFixture(session *model.LaneSession, customer *model.Customer) *fixture {
	cfg := paymentTestConfig()
	f := &fixture{
		intents:   &mockIntentRepository{},
		sessions:  &mockSessionStore{session: session},
		customers: &mockCustomerReader{customer: customer},
		writer:    &mockCustomerWriter{},
		auth:      &mockAuthorizer{},
		auditor:   &mockRecorder{},
		publisher: &eventPublisher{},
	}
	f.service = NewPaymentService(
		f.intents,
		f.sessions,
		f.customers,
		f.writer,
		pricing.NewTableQuoter(),
		f.auth,
		f.auditor,
		f.publisher,
		sessionvalidator.NewSessionValidator(cfg.Log),
		cfg,
	)
	return f
}

func lockedSession() *model.LaneSession {
	return &model.LaneSession{
		ID:                 "sess-1",
		LaneID:             "lane-1",
		Status:             model.SessionAwaitingAssign,
		CustomerID:         "cust-1",
		DesiredTier:        model.TierStandard,
		SelectionConfirmed: true,
	}
}

func adultCustomer() *model.Customer {
	born := time.Now().AddDate(-40, 0, 0)
	return &model.Customer{
		ID:          "cust-1",
		Name:        "Pat Doe",
		DateOfBirth: &born,
	}
}

func TestCreateIntent_RequiresLockedSelection(t *testing.T) {
	session := lockedSession()
	session.SelectionConfirmed = false
	f := newFixture(session, adultCustomer())

	_, err := f.service.CreateIntent(context.Background(), "lane-1")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error before the selection is locked, got %v", err)
	}
}

func TestCreateIntent_ReusesExistingDueIntent(t *testing.T) {
	f := newFixture(lockedSession(), adultCustomer())
	f.intents.findDueFunc = func(ctx context.Context, sessionID string) ([]*model.PaymentIntent, error) {
		return []*model.PaymentIntent{
			{ID: "intent-old", LaneSessionID: sessionID, Amount: 9999, Status: model.IntentDue},
			{ID: "intent-stale", LaneSessionID: sessionID, Amount: 1, Status: model.IntentDue},
		}, nil
	}

	intent, err := f.service.CreateIntent(context.Background(), "lane-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.ID != "intent-old" {
		t.Errorf("expected the oldest DUE intent to be reused, got %s", intent.ID)
	}
	if len(f.intents.created) != 0 {
		t.Error("expected no new intent when a DUE intent exists")
	}
	if len(f.intents.repriced) != 1 || f.intents.repriced[0] != "intent-old" {
		t.Errorf("expected reused intent to be re-priced, got %v", f.intents.repriced)
	}
	if len(f.intents.cancelledOthers) != 1 || f.intents.cancelledOthers[0] != "intent-old" {
		t.Errorf("expected other intents cancelled keeping intent-old, got %v", f.intents.cancelledOthers)
	}
	if intent.Amount != 4800 {
		t.Errorf("expected standard tier amount 4800, got %d", intent.Amount)
	}
}

func TestCreateIntent_CreatesAndAdvancesSession(t *testing.T) {
	f := newFixture(lockedSession(), adultCustomer())

	intent, err := f.service.CreateIntent(context.Background(), "lane-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.intents.created) != 1 {
		t.Fatalf("expected one created intent, got %d", len(f.intents.created))
	}
	if intent.Status != model.IntentDue {
		t.Errorf("expected new intent DUE, got %s", intent.Status)
	}
	if len(f.sessions.statusUpdates) != 1 || f.sessions.statusUpdates[0] != model.SessionAwaitingPayment {
		t.Errorf("expected session advanced to AWAITING_PAYMENT, got %v", f.sessions.statusUpdates)
	}
	if len(f.sessions.paymentRefs) != 1 || f.sessions.paymentRefs[0] != intent.ID {
		t.Errorf("expected payment ref recorded on session, got %v", f.sessions.paymentRefs)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0] != "payment.intent_created" {
		t.Errorf("expected intent_created event, got %v", f.publisher.events)
	}
}

func TestMarkPaid_IdempotentOnPaidIntent(t *testing.T) {
	f := newFixture(lockedSession(), adultCustomer())
	now := time.Now()
	f.intents.findByIDFunc = func(ctx context.Context, id string) (*model.PaymentIntent, error) {
		return &model.PaymentIntent{
			ID:            id,
			LaneSessionID: "sess-1",
			Status:        model.IntentPaid,
			PaidAt:        &now,
		}, nil
	}

	result, err := f.service.MarkPaid(context.Background(), "intent-1", &MarkPaidInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.AlreadyPaid {
		t.Error("expected already-paid result on second mark")
	}
	if len(f.sessions.statusUpdates) != 0 {
		t.Errorf("expected no session mutation on repeat mark, got %v", f.sessions.statusUpdates)
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("expected no events on repeat mark, got %v", f.publisher.events)
	}
}

func TestMarkPaid_CheckinAdvancesToSignature(t *testing.T) {
	session := lockedSession()
	session.Status = model.SessionAwaitingPayment
	session.MembershipPurchase = true
	f := newFixture(session, adultCustomer())

	due := &model.PaymentIntent{
		ID:            "intent-1",
		LaneSessionID: "sess-1",
		Amount:        4800,
		Status:        model.IntentDue,
		Quote:         model.Quote{Purpose: model.PurposeCheckin},
	}
	f.intents.findByIDFunc = func(ctx context.Context, id string) (*model.PaymentIntent, error) {
		return due, nil
	}
	f.intents.markPaidFunc = func(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error) {
		paid := *due
		paid.Status = model.IntentPaid
		paid.Method = method
		paid.PaidAt = &at
		return &paid, nil
	}

	result, err := f.service.MarkPaid(context.Background(), "intent-1", &MarkPaidInput{Method: "CARD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AlreadyPaid {
		t.Error("expected first mark to not report already-paid")
	}
	if len(f.sessions.statusUpdates) != 1 || f.sessions.statusUpdates[0] != model.SessionAwaitingSignature {
		t.Errorf("expected session advanced to AWAITING_SIGNATURE, got %v", f.sessions.statusUpdates)
	}
	if len(f.writer.granted) != 1 {
		t.Errorf("expected purchased membership granted, got %v", f.writer.granted)
	}
	if !f.auditor.has(model.AuditPaymentCompleted) {
		t.Error("expected payment completion audit entry")
	}
}

func TestMarkPaid_UpgradeLeavesSessionAlone(t *testing.T) {
	session := lockedSession()
	session.Status = model.SessionCompleted
	f := newFixture(session, adultCustomer())

	due := &model.PaymentIntent{
		ID:            "intent-2",
		LaneSessionID: "sess-1",
		Amount:        2800,
		Status:        model.IntentDue,
		Quote:         model.Quote{Purpose: model.PurposeUpgrade},
	}
	f.intents.findByIDFunc = func(ctx context.Context, id string) (*model.PaymentIntent, error) {
		return due, nil
	}
	f.intents.markPaidFunc = func(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error) {
		paid := *due
		paid.Status = model.IntentPaid
		return &paid, nil
	}

	if _, err := f.service.MarkPaid(context.Background(), "intent-2", &MarkPaidInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.sessions.statusUpdates) != 0 {
		t.Errorf("expected upgrade payment to leave session status alone, got %v", f.sessions.statusUpdates)
	}
}

func TestMarkPaid_SettlementZeroesBalance(t *testing.T) {
	session := lockedSession()
	session.Status = model.SessionActive
	f := newFixture(session, adultCustomer())

	due := &model.PaymentIntent{
		ID:            "intent-3",
		LaneSessionID: "sess-1",
		Amount:        2500,
		Status:        model.IntentDue,
		Quote:         model.Quote{Purpose: model.PurposeSettlement},
	}
	f.intents.findByIDFunc = func(ctx context.Context, id string) (*model.PaymentIntent, error) {
		return due, nil
	}
	f.intents.markPaidFunc = func(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error) {
		paid := *due
		paid.Status = model.IntentPaid
		return &paid, nil
	}

	if _, err := f.service.MarkPaid(context.Background(), "intent-3", &MarkPaidInput{Method: "CASH"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.writer.settled) != 1 || f.writer.settled[0] != "cust-1" {
		t.Errorf("expected past-due balance settled for cust-1, got %v", f.writer.settled)
	}
	if !f.auditor.has(model.AuditPastDueSettled) {
		t.Error("expected settlement audit entry")
	}
	if len(f.sessions.statusUpdates) != 0 {
		t.Errorf("expected settlement to leave session status alone, got %v", f.sessions.statusUpdates)
	}
}

func TestTakePayment_FailureKeepsIntentDue(t *testing.T) {
	f := newFixture(lockedSession(), adultCustomer())

	var failedID string
	f.intents.findByIDFunc = func(ctx context.Context, id string) (*model.PaymentIntent, error) {
		return &model.PaymentIntent{ID: id, LaneSessionID: "sess-1", Status: model.IntentDue}, nil
	}
	f.intents.recordFailureFunc = func(ctx context.Context, id, reason string, at time.Time) error {
		failedID = id
		return nil
	}

	result, err := f.service.TakePayment(context.Background(), "intent-1", &TakePaymentInput{
		Outcome:       "FAILURE",
		FailureReason: "card declined",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failedID != "intent-1" {
		t.Errorf("expected failure recorded on intent-1, got %q", failedID)
	}
	if result.Intent.FailureReason != "card declined" {
		t.Errorf("expected failure reason carried on result, got %q", result.Intent.FailureReason)
	}
	if len(f.publisher.events) != 0 {
		t.Errorf("expected no completion events on failure, got %v", f.publisher.events)
	}
}

func TestCreateSettlementIntent_RequiresBalance(t *testing.T) {
	customer := adultCustomer()
	customer.PastDueBalance = 0
	f := newFixture(lockedSession(), customer)

	_, err := f.service.CreateSettlementIntent(context.Background(), "lane-1")
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error with no balance, got %v", err)
	}
}

func TestCreateSettlementIntent_PricesOutstandingBalance(t *testing.T) {
	customer := adultCustomer()
	customer.PastDueBalance = 3200
	session := lockedSession()
	session.Status = model.SessionActive
	f := newFixture(session, customer)

	intent, err := f.service.CreateSettlementIntent(context.Background(), "lane-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.Amount != 3200 {
		t.Errorf("expected settlement amount 3200, got %d", intent.Amount)
	}
	if intent.Quote.Purpose != model.PurposeSettlement {
		t.Errorf("expected SETTLEMENT purpose, got %s", intent.Quote.Purpose)
	}
}

func TestBypassPastDue_RejectsBadCredential(t *testing.T) {
	f := newFixture(lockedSession(), adultCustomer())
	f.auth.err = apperrors.Forbidden("Invalid admin credential")

	_, err := f.service.BypassPastDue(context.Background(), "lane-1", &BypassPastDueInput{
		OperatorID: "op-1",
		Credential: "wrong",
	})
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden on bad credential, got %v", err)
	}
	if f.sessions.bypassed {
		t.Error("expected no bypass recorded on failed authorization")
	}
}

func TestBypassPastDue_MarksSession(t *testing.T) {
	f := newFixture(lockedSession(), adultCustomer())

	session, err := f.service.BypassPastDue(context.Background(), "lane-1", &BypassPastDueInput{
		OperatorID: "op-1",
		Credential: "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.PastDueBypassed || session.PastDueBypassedBy != "op-1" {
		t.Errorf("expected bypass flagged by op-1, got %+v", session)
	}
	if !f.auditor.has(model.AuditPastDueBypass) {
		t.Error("expected bypass audit entry")
	}
	if !f.sessions.bypassed {
		t.Error("expected bypass persisted")
	}
}

func TestMarkPaid_CheckinOnSettledSessionLeavesItAlone(t *testing.T) {
	// The lane was reset between intent creation and the terminal
	// confirming payment. The money is recorded but the settled
	// session must not be pulled back to AWAITING_SIGNATURE.
	session := lockedSession()
	session.Status = model.SessionCompleted
	f := newFixture(session, adultCustomer())
	f.sessions.settled = true

	due := &model.PaymentIntent{
		ID:            "intent-1",
		LaneSessionID: "sess-1",
		Amount:        4800,
		Status:        model.IntentDue,
		Quote:         model.Quote{Purpose: model.PurposeCheckin},
	}
	f.intents.findByIDFunc = func(ctx context.Context, id string) (*model.PaymentIntent, error) {
		return due, nil
	}
	f.intents.markPaidFunc = func(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error) {
		paid := *due
		paid.Status = model.IntentPaid
		paid.Method = method
		paid.PaidAt = &at
		return &paid, nil
	}

	result, err := f.service.MarkPaid(context.Background(), "intent-1", &MarkPaidInput{Method: "CARD"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent.Status != model.IntentPaid {
		t.Errorf("expected the intent marked paid, got %s", result.Intent.Status)
	}
	if len(f.sessions.statusUpdates) != 0 {
		t.Errorf("expected the settled session untouched, got %v", f.sessions.statusUpdates)
	}
}
