package model

import "time"

// Visit groups contiguous occupancy blocks for one continuous stay.
// ClosedAt is nil while the visit is open; renewals always extend the
// open visit, never start a new one.
type Visit struct {
	ID         string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	CustomerID string     `json:"customer_id" bson:"customer_id" validate:"required,mongodb"`
	OpenedAt   time.Time  `json:"opened_at" bson:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// OccupancyBlock is one time-bounded stay segment. A RENEWAL block's
// StartTime equals the prior block's EndTime, never wall-clock now.
type OccupancyBlock struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	VisitID       string    `json:"visit_id" bson:"visit_id" validate:"required,mongodb"`
	StartTime     time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Tier          string    `json:"tier" bson:"tier" validate:"required,oneof=STANDARD DOUBLE SPECIAL LOCKER"`
	ResourceID    string    `json:"resource_id" bson:"resource_id" validate:"required"`
	ResourceKind  string    `json:"resource_kind" bson:"resource_kind" validate:"required,oneof=room locker"`
	LaneSessionID string    `json:"lane_session_id" bson:"lane_session_id" validate:"required"`

	AgreementSigned bool   `json:"agreement_signed" bson:"agreement_signed"`
	AgreementID     string `json:"agreement_id,omitempty" bson:"agreement_id,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (b *OccupancyBlock) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Agreement is the immutable audit record of a signed rental
// agreement: the rendered document plus the sealed signature payload
// (or the manual override marker).
type Agreement struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty"`
	LaneSessionID string    `json:"lane_session_id" bson:"lane_session_id"`
	CustomerID    string    `json:"customer_id" bson:"customer_id"`
	Document      []byte    `json:"-" bson:"document"`
	Signature     string    `json:"-" bson:"signature"`
	Overridden    bool      `json:"overridden" bson:"overridden"`
	OverriddenBy  string    `json:"overridden_by,omitempty" bson:"overridden_by,omitempty"`
	SignedAt      time.Time `json:"signed_at" bson:"signed_at"`
}

// SignatureOverrideMarker replaces the signature image when staff use
// the manual override path.
const SignatureOverrideMarker = "MANUAL_OVERRIDE"
