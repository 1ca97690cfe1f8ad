package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	allocerrors "lanedesk/internal/allocation/errors"
	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Resources"

type ResourceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Resource, error)
	HoldResource(ctx context.Context, resourceID, sessionID string) (*model.Resource, error)
	ReleaseHold(ctx context.Context, resourceID, sessionID string) error
	ClaimOccupied(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error)
	FindAvailableByTier(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error)
}

type mongoResourceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoResourceRepository(cfg *config.Config) ResourceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoResourceRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoResourceRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", allocerrors.ErrInvalidID, id)
	}

	var resource model.Resource
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&resource)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	return &resource, nil
}

// availableFilter matches a unit nothing else has touched: CLEAN,
// unassigned and either unheld or already held by this session.
func availableFilter(sessionID string) bson.M {
	return bson.M{
		"status":            model.ResourceClean,
		"assigned_customer": bson.M{"$in": []any{nil, ""}},
		"held_by_session":   bson.M{"$in": []any{nil, "", sessionID}},
	}
}

// HoldResource places the tentative hold. The conditional update is
// the concurrency control: of N racing holds on one unit exactly one
// matches, the rest get ErrClaimLost. Status and assignee are left
// untouched so the cleaning workflow never sees the hold.
func (r *mongoResourceRepository) HoldResource(ctx context.Context, resourceID, sessionID string) (*model.Resource, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(resourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", allocerrors.ErrInvalidID, resourceID)
	}

	filter := availableFilter(sessionID)
	filter["_id"] = objectID
	update := bson.M{"$set": bson.M{
		"held_by_session": sessionID,
		"updated_at":      time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var resource model.Resource
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&resource)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrClaimLost
		}
		return nil, fmt.Errorf("failed to hold resource: %w", err)
	}
	return &resource, nil
}

// ReleaseHold drops this session's hold. Releasing a hold that is
// gone, or held by someone else, is a no-op.
func (r *mongoResourceRepository) ReleaseHold(ctx context.Context, resourceID, sessionID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(resourceID)
	if err != nil {
		return fmt.Errorf("%w: %s", allocerrors.ErrInvalidID, resourceID)
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "held_by_session": sessionID},
		bson.M{
			"$unset": bson.M{"held_by_session": ""},
			"$set":   bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release resource hold: %w", err)
	}
	return nil
}

// ClaimOccupied is the physical commit: the single CLEAN to OCCUPIED
// transition, recording the assignee and consuming any hold. The same
// conditional-update rule applies; a unit taken by another lane in
// the meantime yields ErrClaimLost.
func (r *mongoResourceRepository) ClaimOccupied(ctx context.Context, resourceID, sessionID, customerID string) (*model.Resource, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(resourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", allocerrors.ErrInvalidID, resourceID)
	}

	filter := availableFilter(sessionID)
	filter["_id"] = objectID
	update := bson.M{
		"$set": bson.M{
			"status":            model.ResourceOccupied,
			"assigned_customer": customerID,
			"updated_at":        time.Now().UTC(),
		},
		"$unset": bson.M{"held_by_session": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var resource model.Resource
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&resource)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrClaimLost
		}
		return nil, fmt.Errorf("failed to claim resource: %w", err)
	}
	return &resource, nil
}

// FindAvailableByTier lists candidate units for auto-selection in
// ascending number order, excluding units pinned to waitlist offers.
func (r *mongoResourceRepository) FindAvailableByTier(ctx context.Context, tier string, excludeIDs []string) ([]*model.Resource, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := availableFilter("")
	filter["tier"] = tier

	if len(excludeIDs) > 0 {
		excluded := make([]primitive.ObjectID, 0, len(excludeIDs))
		for _, id := range excludeIDs {
			if oid, err := primitive.ObjectIDFromHex(id); err == nil {
				excluded = append(excluded, oid)
			}
		}
		filter["_id"] = bson.M{"$nin": excluded}
	}

	opts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find available resources: %w", err)
	}
	defer cursor.Close(ctx)

	var resources []*model.Resource
	if err = cursor.All(ctx, &resources); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}
	return resources, nil
}
