package identity

import (
	"context"
	"errors"
	"time"

	identityerrors "lanedesk/internal/identity/errors"
	"lanedesk/internal/identity/repository"
	apperrors "lanedesk/pkg/errors"
	"lanedesk/pkg/model"
	"lanedesk/pkg/sanitizer"
)

// StoreResolver looks customers up by scan hash and creates a record
// on first sight. Barcode decoding and identity normalization happen
// upstream; by the time a request reaches the engine the scan is
// already reduced to a stable hash.
type StoreResolver struct {
	customers repository.CustomerRepository
}

func NewStoreResolver(customers repository.CustomerRepository) *StoreResolver {
	return &StoreResolver{customers: customers}
}

func (r *StoreResolver) ResolveScan(ctx context.Context, scanHash, displayName string) (*Identification, error) {
	if scanHash == "" {
		return nil, apperrors.InvalidInput("Scan hash cannot be empty")
	}

	customer, err := r.customers.FindByScanHash(ctx, scanHash)
	if err != nil {
		if !errors.Is(err, identityerrors.ErrNotFound) {
			return nil, apperrors.Internal("Failed to resolve scan", err)
		}
		customer = &model.Customer{
			Name:     sanitizer.SanitizeDisplayName(displayName),
			ScanHash: scanHash,
		}
		if customer.Name == "" {
			customer.Name = "Guest"
		}
		if err := r.customers.Create(ctx, customer); err != nil {
			return nil, apperrors.Internal("Failed to create customer", err)
		}
	}

	now := time.Now()
	banned := customer.IsBanned(now)
	return &Identification{
		Customer: customer,
		Banned:   banned,
		Eligible: !banned,
	}, nil
}
