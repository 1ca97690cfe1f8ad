package repository

import (
	"context"
	"fmt"
	"time"

	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const AgreementCollectionName = "Agreements"

// AgreementRepository is insert-only. Agreements are immutable audit
// artifacts; nothing in the engine updates or deletes one.
type AgreementRepository interface {
	Create(ctx context.Context, agreement *model.Agreement) error
}

type mongoAgreementRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoAgreementRepository(cfg *config.Config) AgreementRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAgreementRepository{
		cfg:        cfg,
		collection: db.Collection(AgreementCollectionName),
	}
}

func (r *mongoAgreementRepository) Create(ctx context.Context, agreement *model.Agreement) error {
	if _, ok := ctx.(mongo.SessionContext); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
	}

	if agreement.SignedAt.IsZero() {
		agreement.SignedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	result, err := r.collection.InsertOne(ctx, agreement)
	if err != nil {
		return fmt.Errorf("failed to create agreement: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		agreement.ID = oid.Hex()
	}
	return nil
}
