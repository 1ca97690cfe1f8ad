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
	"go.mongodb.org/mongo-driver/mongo/options"
)

const BlockCollectionName = "OccupancyBlocks"

type OccupancyBlockRepository interface {
	Insert(ctx context.Context, block *model.OccupancyBlock) error
	FindLastByVisit(ctx context.Context, visitID string) (*model.OccupancyBlock, error)
	SumDurationsByVisit(ctx context.Context, visitID string) (time.Duration, error)
	UpcomingEndTimes(ctx context.Context, after time.Time, limit int) ([]time.Time, error)
}

type mongoOccupancyBlockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoOccupancyBlockRepository(cfg *config.Config) OccupancyBlockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoOccupancyBlockRepository{
		cfg:        cfg,
		collection: db.Collection(BlockCollectionName),
	}
}

func (r *mongoOccupancyBlockRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoOccupancyBlockRepository) Insert(ctx context.Context, block *model.OccupancyBlock) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	block.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, block)
	if err != nil {
		return fmt.Errorf("failed to insert occupancy block: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		block.ID = oid.Hex()
	}
	return nil
}

// FindLastByVisit returns the block with the latest end time. Renewal
// blocks chain off this, not off wall-clock now.
func (r *mongoOccupancyBlockRepository) FindLastByVisit(ctx context.Context, visitID string) (*model.OccupancyBlock, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.M{"end_time": -1})

	var block model.OccupancyBlock
	err := r.collection.FindOne(ctx, bson.M{"visit_id": visitID}, opts).Decode(&block)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, commiterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find last occupancy block: %w", err)
	}
	return &block, nil
}

func (r *mongoOccupancyBlockRepository) SumDurationsByVisit(ctx context.Context, visitID string) (time.Duration, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := []bson.M{
		{"$match": bson.M{"visit_id": visitID}},
		{"$group": bson.M{
			"_id":      nil,
			"total_ms": bson.M{"$sum": bson.M{"$subtract": []string{"$end_time", "$start_time"}}},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum block durations: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		TotalMS int64 `bson:"total_ms"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode block duration sum: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return time.Duration(results[0].TotalMS) * time.Millisecond, nil
}

// UpcomingEndTimes feeds the waitlist estimator: end times still in
// the future, soonest first.
func (r *mongoOccupancyBlockRepository) UpcomingEndTimes(ctx context.Context, after time.Time, limit int) ([]time.Time, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.M{"end_time": 1}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"end_time": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"end_time": bson.M{"$gt": after}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming block ends: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		EndTime time.Time `bson:"end_time"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode block end times: %w", err)
	}

	ends := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		ends = append(ends, row.EndTime)
	}
	return ends, nil
}
