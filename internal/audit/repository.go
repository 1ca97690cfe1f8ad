// Package audit appends immutable audit entries as a side effect of
// assignment, payment completion and manual overrides.
package audit

import (
	"context"
	"fmt"
	"time"

	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const CollectionName = "AuditLog"

type Recorder interface {
	Record(ctx context.Context, entry *model.AuditEntry) error
}

type mongoAuditRepository struct {
	collection *mongo.Collection
}

func NewMongoAuditRepository(cfg *config.Config) Recorder {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAuditRepository{
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoAuditRepository) Record(ctx context.Context, entry *model.AuditEntry) error {
	entry.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid.Hex()
	}
	return nil
}
