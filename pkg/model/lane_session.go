package model

import "time"

// Lane session lifecycle. Transitions are driven exclusively by the
// negotiation, allocation, payment and commit services; there is no
// standalone advance operation.
const (
	SessionActive            = "ACTIVE"
	SessionAwaitingAssign    = "AWAITING_ASSIGNMENT"
	SessionAwaitingPayment   = "AWAITING_PAYMENT"
	SessionAwaitingSignature = "AWAITING_SIGNATURE"
	SessionCompleted         = "COMPLETED"
	SessionCancelled         = "CANCELLED"
)

// NonTerminalStatuses is the filter for "the session currently owning
// a lane"; at most one session per lane is ever in one of these.
var NonTerminalStatuses = []string{
	SessionActive,
	SessionAwaitingAssign,
	SessionAwaitingPayment,
	SessionAwaitingSignature,
}

const (
	ActorCustomer = "CUSTOMER"
	ActorEmployee = "EMPLOYEE"
)

const (
	ModeInitial = "INITIAL"
	ModeRenewal = "RENEWAL"
)

type LaneSession struct {
	ID     string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	LaneID string `json:"lane_id" bson:"lane_id" validate:"required,min=1,max=32"`
	Status string `json:"status" bson:"status" validate:"required,oneof=ACTIVE AWAITING_ASSIGNMENT AWAITING_PAYMENT AWAITING_SIGNATURE COMPLETED CANCELLED"`

	OperatorID       string `json:"operator_id,omitempty" bson:"operator_id,omitempty"`
	CustomerID       string `json:"customer_id,omitempty" bson:"customer_id,omitempty" validate:"omitempty,mongodb"`
	CustomerName     string `json:"customer_name,omitempty" bson:"customer_name,omitempty" validate:"omitempty,max=100"`
	MembershipNumber string `json:"membership_number,omitempty" bson:"membership_number,omitempty" validate:"omitempty,max=32"`

	Mode string `json:"mode" bson:"mode" validate:"required,oneof=INITIAL RENEWAL"`

	// DesiredTier is authoritative only once the selection is locked;
	// it is a snapshot of the proposed tier at lock time and is never
	// re-derived afterwards.
	DesiredTier  string `json:"desired_tier,omitempty" bson:"desired_tier,omitempty"`
	WaitlistTier string `json:"waitlist_tier,omitempty" bson:"waitlist_tier,omitempty"`
	BackupTier   string `json:"backup_tier,omitempty" bson:"backup_tier,omitempty"`

	ProposedTier string `json:"proposed_tier,omitempty" bson:"proposed_tier,omitempty"`
	ProposedBy   string `json:"proposed_by,omitempty" bson:"proposed_by,omitempty" validate:"omitempty,oneof=CUSTOMER EMPLOYEE"`

	SelectionConfirmed bool       `json:"selection_confirmed" bson:"selection_confirmed"`
	ConfirmedBy        string     `json:"confirmed_by,omitempty" bson:"confirmed_by,omitempty" validate:"omitempty,oneof=CUSTOMER EMPLOYEE"`
	LockedAt           *time.Time `json:"locked_at,omitempty" bson:"locked_at,omitempty"`

	ResourceID   string `json:"resource_id,omitempty" bson:"resource_id,omitempty"`
	ResourceKind string `json:"resource_kind,omitempty" bson:"resource_kind,omitempty" validate:"omitempty,oneof=room locker"`

	PaymentIntentID string `json:"payment_intent_id,omitempty" bson:"payment_intent_id,omitempty"`
	QuoteSnapshot   *Quote `json:"quote_snapshot,omitempty" bson:"quote_snapshot,omitempty"`

	PastDueBypassed   bool       `json:"past_due_bypassed" bson:"past_due_bypassed"`
	PastDueBypassedBy string     `json:"past_due_bypassed_by,omitempty" bson:"past_due_bypassed_by,omitempty"`
	PastDueBypassedAt *time.Time `json:"past_due_bypassed_at,omitempty" bson:"past_due_bypassed_at,omitempty"`

	MembershipPurchase bool `json:"membership_purchase" bson:"membership_purchase"`

	KioskAckAt *time.Time `json:"kiosk_ack_at,omitempty" bson:"kiosk_ack_at,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (s *LaneSession) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionCancelled
}

// SelectionState reports the negotiation sub-machine phase.
func (s *LaneSession) SelectionState() string {
	switch {
	case s.SelectionConfirmed:
		return SelectionLocked
	case s.ProposedTier != "":
		return SelectionProposed
	default:
		return SelectionNone
	}
}

const (
	SelectionNone     = "NONE"
	SelectionProposed = "PROPOSED"
	SelectionLocked   = "LOCKED"
)
