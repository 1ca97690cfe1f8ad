package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	commiterrors "lanedesk/internal/commit/errors"
	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const VisitCollectionName = "Visits"

type VisitRepository interface {
	Create(ctx context.Context, visit *model.Visit) error
	FindOpenByCustomer(ctx context.Context, customerID string) (*model.Visit, error)
	Close(ctx context.Context, id string, at time.Time) error
}

type mongoVisitRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoVisitRepository(cfg *config.Config) VisitRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoVisitRepository{
		cfg:        cfg,
		collection: db.Collection(VisitCollectionName),
	}
}

func (r *mongoVisitRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoVisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if visit.OpenedAt.IsZero() {
		visit.OpenedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	result, err := r.collection.InsertOne(ctx, visit)
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		visit.ID = oid.Hex()
	}
	return nil
}

func (r *mongoVisitRepository) FindOpenByCustomer(ctx context.Context, customerID string) (*model.Visit, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"customer_id": customerID,
		"closed_at":   nil,
	}

	var visit model.Visit
	err := r.collection.FindOne(ctx, filter).Decode(&visit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, commiterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find open visit: %w", err)
	}
	return &visit, nil
}

func (r *mongoVisitRepository) Close(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", commiterrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "closed_at": nil},
		bson.M{"$set": bson.M{"closed_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to close visit: %w", err)
	}
	if result.MatchedCount == 0 {
		return commiterrors.ErrNotFound
	}
	return nil
}
