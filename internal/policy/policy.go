// Package policy holds authorization checks invoked by, but not
// implemented inside, the coordination engine. Booking logic asks
// "may this actor do this" and acts on the answer; the rules live here.
package policy

import (
	"context"
	"crypto/subtle"

	apperrors "lanedesk/pkg/errors"
)

// Authorizer decides whether an operator may perform an elevated
// action such as bypassing a past-due block.
type Authorizer interface {
	AuthorizeAdmin(ctx context.Context, operatorID, credential string) error
}

// PinAuthorizer checks a shared admin PIN. An empty configured PIN
// disables elevated actions entirely.
type PinAuthorizer struct {
	pin string
}

func NewPinAuthorizer(pin string) *PinAuthorizer {
	return &PinAuthorizer{pin: pin}
}

func (a *PinAuthorizer) AuthorizeAdmin(ctx context.Context, operatorID, credential string) error {
	if operatorID == "" {
		return apperrors.Unauthorized("Operator credential required")
	}
	if a.pin == "" {
		return apperrors.Forbidden("Elevated actions are disabled")
	}
	if subtle.ConstantTimeCompare([]byte(a.pin), []byte(credential)) != 1 {
		return apperrors.Forbidden("Admin credential check failed")
	}
	return nil
}
