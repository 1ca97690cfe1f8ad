package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	identityerrors "lanedesk/internal/identity/errors"
	"lanedesk/pkg/config"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Customers"

type CustomerRepository interface {
	FindByID(ctx context.Context, id string) (*model.Customer, error)
	FindByScanHash(ctx context.Context, scanHash string) (*model.Customer, error)
	Create(ctx context.Context, customer *model.Customer) error
	UpdateProfile(ctx context.Context, id, notes, language string) error
	SettlePastDue(ctx context.Context, id string) error
	GrantMembership(ctx context.Context, id, tier string, expiry time.Time) error
}

type mongoCustomerRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCustomerRepository(cfg *config.Config) CustomerRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCustomerRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoCustomerRepository) FindByID(ctx context.Context, id string) (*model.Customer, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}

	var customer model.Customer
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&customer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identityerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return &customer, nil
}

func (r *mongoCustomerRepository) FindByScanHash(ctx context.Context, scanHash string) (*model.Customer, error) {
	var customer model.Customer
	err := r.collection.FindOne(ctx, bson.M{"scan_hash": scanHash}).Decode(&customer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identityerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find customer by scan hash: %w", err)
	}
	return &customer, nil
}

func (r *mongoCustomerRepository) Create(ctx context.Context, customer *model.Customer) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	customer.CreatedAt = now
	customer.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, customer)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		customer.ID = oid.Hex()
	}
	return nil
}

func (r *mongoCustomerRepository) UpdateProfile(ctx context.Context, id, notes, language string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if notes != "" {
		set["notes"] = notes
	}
	if language != "" {
		set["language"] = language
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update customer profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return identityerrors.ErrNotFound
	}
	return nil
}

func (r *mongoCustomerRepository) SettlePastDue(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{
		"$set": bson.M{
			"past_due_balance": int64(0),
			"updated_at":       time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to settle past-due balance: %w", err)
	}
	if result.MatchedCount == 0 {
		return identityerrors.ErrNotFound
	}
	return nil
}

func (r *mongoCustomerRepository) GrantMembership(ctx context.Context, id, tier string, expiry time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", identityerrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{
		"$set": bson.M{
			"membership_tier":   tier,
			"membership_expiry": expiry,
			"updated_at":        time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to grant membership: %w", err)
	}
	if result.MatchedCount == 0 {
		return identityerrors.ErrNotFound
	}
	return nil
}

// EnsureScanHashIndex backs FindByScanHash; scan hashes are unique per
// customer.
func EnsureScanHashIndex(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "scan_hash", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"scan_hash": bson.M{"$type": "string"}}),
	})
	return err
}
