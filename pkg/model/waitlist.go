package model

import "time"

const (
	WaitlistActive    = "ACTIVE"
	WaitlistOffered   = "OFFERED"
	WaitlistFulfilled = "FULFILLED"
	WaitlistExpired   = "EXPIRED"
)

// WaitlistEntry is a queued request for a tier currently unavailable.
// The engine only reads entries: ACTIVE entries bias allocation order
// (fairness offset) and OFFERED entries pin their stopgap resource out
// of candidacy. The offer lifecycle itself is owned elsewhere.
//
// StayEndsAt mirrors the underlying block's end time so demand can be
// counted without a join; the owning workflow keeps it current.
type WaitlistEntry struct {
	ID          string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	VisitID     string `json:"visit_id" bson:"visit_id" validate:"required"`
	BlockID     string `json:"block_id,omitempty" bson:"block_id,omitempty"`
	DesiredTier string `json:"desired_tier" bson:"desired_tier" validate:"required,oneof=STANDARD DOUBLE SPECIAL LOCKER"`
	BackupTier  string `json:"backup_tier,omitempty" bson:"backup_tier,omitempty"`
	Status      string `json:"status" bson:"status" validate:"required,oneof=ACTIVE OFFERED FULFILLED EXPIRED"`

	StopgapResourceID string `json:"stopgap_resource_id,omitempty" bson:"stopgap_resource_id,omitempty"`

	StayEndsAt time.Time `json:"stay_ends_at" bson:"stay_ends_at"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
