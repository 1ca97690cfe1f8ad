package broadcast

import (
	"context"
	"time"

	"lanedesk/pkg/model"
)

// LaneState is the full wire payload for one lane, rebuilt from the
// store of record on every publish. Rebuilding instead of diffing is
// deliberate: every subscriber converges to the same state no matter
// which operation ran last or whether an earlier broadcast was missed.
type LaneState struct {
	LaneID         string               `json:"lane_id"`
	Session        *model.LaneSession   `json:"session,omitempty"`
	SelectionState string               `json:"selection_state,omitempty"`
	Resource       *model.Resource      `json:"resource,omitempty"`
	PaymentIntent  *model.PaymentIntent `json:"payment_intent,omitempty"`
	CustomerName   string               `json:"customer_name,omitempty"`
	PastDue        bool                 `json:"past_due,omitempty"`
	ProjectedAt    time.Time            `json:"projected_at"`
}

// Read-side sources the projector pulls from. The concrete
// repositories satisfy these; the projector needs nothing else.
type SessionSource interface {
	FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error)
}

type ResourceSource interface {
	FindByID(ctx context.Context, id string) (*model.Resource, error)
}

type IntentSource interface {
	FindByID(ctx context.Context, id string) (*model.PaymentIntent, error)
}

type CustomerSource interface {
	FindByID(ctx context.Context, id string) (*model.Customer, error)
}

type Projector struct {
	sessions  SessionSource
	resources ResourceSource
	intents   IntentSource
	customers CustomerSource
}

func NewProjector(sessions SessionSource, resources ResourceSource, intents IntentSource, customers CustomerSource) *Projector {
	return &Projector{
		sessions:  sessions,
		resources: resources,
		intents:   intents,
		customers: customers,
	}
}

// Project assembles the current lane state. A lane with no live
// session projects to an empty state; lookups of referenced documents
// are best-effort so one missing reference cannot block the broadcast.
func (p *Projector) Project(ctx context.Context, laneID string) *LaneState {
	state := &LaneState{
		LaneID:      laneID,
		ProjectedAt: time.Now().UTC(),
	}

	session, err := p.sessions.FindCurrentByLane(ctx, laneID)
	if err != nil || session == nil {
		return state
	}
	state.Session = session
	state.SelectionState = session.SelectionState()

	if session.ResourceID != "" {
		if resource, err := p.resources.FindByID(ctx, session.ResourceID); err == nil {
			state.Resource = resource
		}
	}
	if session.PaymentIntentID != "" {
		if intent, err := p.intents.FindByID(ctx, session.PaymentIntentID); err == nil {
			state.PaymentIntent = intent
		}
	}
	if session.CustomerID != "" {
		if customer, err := p.customers.FindByID(ctx, session.CustomerID); err == nil {
			state.CustomerName = customer.Name
			state.PastDue = customer.PastDueBalance > 0
		}
	}

	return state
}
