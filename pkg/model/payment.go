package model

import "time"

const (
	IntentDue       = "DUE"
	IntentPaid      = "PAID"
	IntentCancelled = "CANCELLED"
)

// PaymentPurpose is a closed variant. markPaid dispatches on it with an
// exhaustive switch; a new purpose must be added here explicitly, never
// inferred from quote contents.
type PaymentPurpose string

const (
	PurposeCheckin        PaymentPurpose = "CHECKIN"
	PurposeUpgrade        PaymentPurpose = "UPGRADE"
	PurposeFinalExtension PaymentPurpose = "FINAL_EXTENSION"
	PurposeSettlement     PaymentPurpose = "SETTLEMENT"
)

func (p PaymentPurpose) Valid() bool {
	switch p {
	case PurposeCheckin, PurposeUpgrade, PurposeFinalExtension, PurposeSettlement:
		return true
	}
	return false
}

type QuoteLine struct {
	Label  string `json:"label" bson:"label"`
	Amount int64  `json:"amount" bson:"amount"`
}

// Quote is the black-box price computation result, snapshotted onto the
// intent and the session at creation time. Amounts are in cents.
type Quote struct {
	Amount   int64          `json:"amount" bson:"amount"`
	Currency string         `json:"currency" bson:"currency"`
	Purpose  PaymentPurpose `json:"purpose" bson:"purpose"`
	Lines    []QuoteLine    `json:"lines,omitempty" bson:"lines,omitempty"`
}

// PaymentIntent. At most one DUE intent exists per lane session at any
// time; createPaymentIntent reuses and re-prices an existing DUE intent
// and cancels any stragglers.
type PaymentIntent struct {
	ID            string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	LaneSessionID string `json:"lane_session_id" bson:"lane_session_id" validate:"required"`
	Amount        int64  `json:"amount" bson:"amount" validate:"min=0"`
	Status        string `json:"status" bson:"status" validate:"required,oneof=DUE PAID CANCELLED"`
	Quote         Quote  `json:"quote" bson:"quote"`

	Method        string     `json:"method,omitempty" bson:"method,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty" bson:"failed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
