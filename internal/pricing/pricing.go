// Package pricing is the boundary to the price-quote collaborator. The
// engine consumes quotes as a black box: it supplies the locked tier
// and customer attributes and snapshots whatever comes back.
package pricing

import (
	"context"

	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"
)

type QuoteInput struct {
	Tier               string
	Purpose            model.PaymentPurpose
	CustomerAge        int
	MembershipActive   bool
	MembershipPurchase bool
}

type Quoter interface {
	Quote(ctx context.Context, input QuoteInput) (*model.Quote, error)
}

// TableQuoter prices from a static rate card. It stands in for the
// real pricing service in development and tests.
type TableQuoter struct {
	Rates          map[string]int64
	MembershipFee  int64
	MemberDiscount int64
	SeniorDiscount int64
	SeniorAge      int
	Currency       string
}

func NewTableQuoter() *TableQuoter {
	return &TableQuoter{
		Rates: map[string]int64{
			model.TierStandard: 4800,
			model.TierDouble:   7600,
			model.TierSpecial:  9800,
			model.TierLocker:   1800,
		},
		MembershipFee:  1500,
		MemberDiscount: 500,
		SeniorDiscount: 300,
		SeniorAge:      65,
		Currency:       "USD",
	}
}

func (q *TableQuoter) Quote(ctx context.Context, input QuoteInput) (*model.Quote, error) {
	base, ok := q.Rates[input.Tier]
	if !ok {
		return nil, apperrors.Validation("No rate configured for tier", map[string]any{"tier": input.Tier})
	}

	purpose := input.Purpose
	if purpose == "" {
		purpose = model.PurposeCheckin
	}
	if !purpose.Valid() {
		return nil, apperrors.Validation("Unknown payment purpose", map[string]any{"purpose": string(purpose)})
	}

	quote := &model.Quote{
		Currency: q.Currency,
		Purpose:  purpose,
		Lines:    []model.QuoteLine{{Label: "Rental " + input.Tier, Amount: base}},
	}

	if input.MembershipActive && q.MemberDiscount > 0 {
		quote.Lines = append(quote.Lines, model.QuoteLine{Label: "Member discount", Amount: -q.MemberDiscount})
	}
	if input.CustomerAge >= q.SeniorAge && q.SeniorDiscount > 0 {
		quote.Lines = append(quote.Lines, model.QuoteLine{Label: "Senior discount", Amount: -q.SeniorDiscount})
	}
	if input.MembershipPurchase {
		quote.Lines = append(quote.Lines, model.QuoteLine{Label: "Membership purchase", Amount: q.MembershipFee})
	}

	for _, line := range quote.Lines {
		quote.Amount += line.Amount
	}
	if quote.Amount < 0 {
		quote.Amount = 0
	}

	return quote, nil
}
