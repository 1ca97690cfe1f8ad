package repository

import (
	"context"
	"time"

	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// LaneLockRepository provides short-lived advisory locks. A TTL index
// on expires_at reaps locks abandoned by crashed callers.
type LaneLockRepository interface {
	Acquire(ctx context.Context, lock *model.LaneLock) error
	Release(ctx context.Context, lockID string) error
}

type mongoLaneLockRepository struct {
	collection *mongo.Collection
}

func NewMongoLaneLockRepository(cfg *config.Config) LaneLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLaneLockRepository{
		collection: db.Collection("LaneLocks"),
	}
}

// Acquire returns the raw duplicate key error when the lock is held;
// callers check with mongo.IsDuplicateKeyError.
func (r *mongoLaneLockRepository) Acquire(ctx context.Context, lock *model.LaneLock) error {
	lock.CreatedAt = time.Now().UTC()
	_, err := r.collection.InsertOne(ctx, lock)
	return err
}

func (r *mongoLaneLockRepository) Release(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
