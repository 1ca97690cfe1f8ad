package repository

import (
	"context"
	"fmt"
	"time"

	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const WaitlistCollectionName = "WaitlistEntries"

// WaitlistRepository is the read side of the waitlist used to bias
// allocation order. The offer lifecycle writes these documents
// elsewhere; the engine never mutates them.
type WaitlistRepository interface {
	CountActive(ctx context.Context, tier string) (int64, error)
	CountActiveDemand(ctx context.Context, tier string, now time.Time) (int64, error)
	ReservedResourceIDs(ctx context.Context, tier string) ([]string, error)
}

type mongoWaitlistRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoWaitlistRepository(cfg *config.Config) WaitlistRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoWaitlistRepository{
		cfg:        cfg,
		collection: db.Collection(WaitlistCollectionName),
	}
}

// CountActive counts every ACTIVE entry for the tier; the waitlist
// estimator derives queue position from it.
func (r *mongoWaitlistRepository) CountActive(ctx context.Context, tier string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"desired_tier": tier,
		"status":       model.WaitlistActive,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count active waitlist entries: %w", err)
	}
	return count, nil
}

// CountActiveDemand counts ACTIVE entries for the tier whose stay has
// not yet ended. These are the customers queued ahead of any new
// walk-in of the same tier.
func (r *mongoWaitlistRepository) CountActiveDemand(ctx context.Context, tier string, now time.Time) (int64, error) {
	if _, ok := ctx.(mongo.SessionContext); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ReadTimeout)
		defer cancel()
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"desired_tier": tier,
		"status":       model.WaitlistActive,
		"stay_ends_at": bson.M{"$gt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist demand: %w", err)
	}
	return count, nil
}

// ReservedResourceIDs returns the stopgap units pinned to OFFERED
// entries of the tier; those units are out of candidacy.
func (r *mongoWaitlistRepository) ReservedResourceIDs(ctx context.Context, tier string) ([]string, error) {
	if _, ok := ctx.(mongo.SessionContext); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ReadTimeout)
		defer cancel()
	}

	cursor, err := r.collection.Find(ctx, bson.M{
		"desired_tier":        tier,
		"status":              model.WaitlistOffered,
		"stopgap_resource_id": bson.M{"$gt": ""},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find offered waitlist entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.WaitlistEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode waitlist entries: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.StopgapResourceID)
	}
	return ids, nil
}
