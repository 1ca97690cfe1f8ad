package model

import "time"

const (
	KindRoom   = "room"
	KindLocker = "locker"
)

const (
	ResourceClean    = "CLEAN"
	ResourceDirty    = "DIRTY"
	ResourceCleaning = "CLEANING"
	ResourceOccupied = "OCCUPIED"
)

// Rental tiers. The tier of a resource is reference data seeded at
// migration time; allocation only ever asks "what tier is resource X",
// never derives a tier from a room number.
const (
	TierStandard = "STANDARD"
	TierDouble   = "DOUBLE"
	TierSpecial  = "SPECIAL"
	TierLocker   = "LOCKER"
)

// Resource is a room or locker. Status is owned jointly: the cleaning
// workflow moves DIRTY/CLEANING/CLEAN, the engine performs the single
// CLEAN -> OCCUPIED transition at commit. A tentative hold
// (HeldBySession) never changes status or assignee: until commit the
// resource stays CLEAN and unassigned and the hold is invisible to the
// cleaning workflow.
type Resource struct {
	ID     string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Number int    `json:"number" bson:"number" validate:"required,min=1"`
	Kind   string `json:"kind" bson:"kind" validate:"required,oneof=room locker"`
	Tier   string `json:"tier" bson:"tier" validate:"required,oneof=STANDARD DOUBLE SPECIAL LOCKER"`
	Status string `json:"status" bson:"status" validate:"required,oneof=CLEAN DIRTY CLEANING OCCUPIED"`

	AssignedCustomer string `json:"assigned_customer,omitempty" bson:"assigned_customer,omitempty"`
	HeldBySession    string `json:"held_by_session,omitempty" bson:"held_by_session,omitempty"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// LaneLock is a short-lived advisory lock document. Inserting a
// duplicate _id fails, which is how a second lane loses the race for a
// contended critical section (tier auto-selection). A TTL index on
// ExpiresAt reaps locks left behind by crashed transactions.
type LaneLock struct {
	ID        string    `json:"id" bson:"_id"`
	Owner     string    `json:"owner" bson:"owner"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
