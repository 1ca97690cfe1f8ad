// Package identity is the boundary to the identity resolver
// collaborator that owns customer records. The engine reads
// eligibility facts and hands scan payloads over for normalization; it
// never decodes scan images itself.
package identity

import (
	"context"
	"time"

	"lanedesk/pkg/model"
)

// Identification is what the resolver reports back after a scan:
// the customer reference plus the flags the lane needs immediately.
type Identification struct {
	Customer *model.Customer `json:"customer"`
	Banned   bool            `json:"banned"`
	Eligible bool            `json:"eligible"`
}

// Resolver normalizes a scan into a customer record, creating one on
// first sight.
type Resolver interface {
	ResolveScan(ctx context.Context, scanHash, displayName string) (*Identification, error)
}

// CustomerReader is the read side the engine needs during negotiation
// and payment: balance, ban and membership facts.
type CustomerReader interface {
	FindByID(ctx context.Context, id string) (*model.Customer, error)
}

// CustomerWriter covers the only customer fields the engine writes.
type CustomerWriter interface {
	UpdateProfile(ctx context.Context, id, notes, language string) error
	SettlePastDue(ctx context.Context, id string) error
	GrantMembership(ctx context.Context, id, tier string, expiry time.Time) error
}
