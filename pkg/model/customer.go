package model

import "time"

// Customer identity is owned by the identity resolver collaborator.
// The engine reads eligibility facts (balance, ban, membership) and
// writes only notes, language and membership-on-purchase.
type Customer struct {
	ID               string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name             string     `json:"name" bson:"name" validate:"required,min=1,max=100"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty" bson:"date_of_birth,omitempty"`
	MembershipNumber string     `json:"membership_number,omitempty" bson:"membership_number,omitempty" validate:"omitempty,max=32"`
	MembershipTier   string     `json:"membership_tier,omitempty" bson:"membership_tier,omitempty"`
	MembershipExpiry *time.Time `json:"membership_expiry,omitempty" bson:"membership_expiry,omitempty"`
	BannedUntil      *time.Time `json:"banned_until,omitempty" bson:"banned_until,omitempty"`
	PastDueBalance   int64      `json:"past_due_balance" bson:"past_due_balance" validate:"min=0"`
	Notes            string     `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=2000"`
	Language         string     `json:"language,omitempty" bson:"language,omitempty" validate:"omitempty,len=2"`
	ScanHash         string     `json:"scan_hash,omitempty" bson:"scan_hash,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (c *Customer) IsBanned(now time.Time) bool {
	return c.BannedUntil != nil && c.BannedUntil.After(now)
}

func (c *Customer) Age(now time.Time) int {
	if c.DateOfBirth == nil {
		return 0
	}
	years := now.Year() - c.DateOfBirth.Year()
	anniversary := c.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}
