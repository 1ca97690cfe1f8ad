package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	paymenterrors "lanedesk/internal/payment/errors"
	"lanedesk/pkg/config"
	mongotx "lanedesk/pkg/db/mongo"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "PaymentIntents"

type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *model.PaymentIntent) error
	FindByID(ctx context.Context, id string) (*model.PaymentIntent, error)
	FindDueBySession(ctx context.Context, sessionID string) ([]*model.PaymentIntent, error)
	Reprice(ctx context.Context, id string, amount int64, quote *model.Quote) error
	CancelOthers(ctx context.Context, sessionID, keepID string) error
	CancelDueBySession(ctx context.Context, sessionID string) error
	MarkPaid(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error)
	RecordFailure(ctx context.Context, id, reason string, at time.Time) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoPaymentIntentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoPaymentIntentRepository(cfg *config.Config) PaymentIntentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPaymentIntentRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoPaymentIntentRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoPaymentIntentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	intent.CreatedAt = now
	intent.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, intent)
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		intent.ID = oid.Hex()
	}
	return nil
}

func (r *mongoPaymentIntentRepository) FindByID(ctx context.Context, id string) (*model.PaymentIntent, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", paymenterrors.ErrInvalidID, id)
	}

	var intent model.PaymentIntent
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&intent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, paymenterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find payment intent: %w", err)
	}
	return &intent, nil
}

func (r *mongoPaymentIntentRepository) FindDueBySession(ctx context.Context, sessionID string) ([]*model.PaymentIntent, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{
		"lane_session_id": sessionID,
		"status":          model.IntentDue,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find due payment intents: %w", err)
	}
	defer cursor.Close(ctx)

	var intents []*model.PaymentIntent
	if err = cursor.All(ctx, &intents); err != nil {
		return nil, fmt.Errorf("failed to decode payment intents: %w", err)
	}
	return intents, nil
}

func (r *mongoPaymentIntentRepository) Reprice(ctx context.Context, id string, amount int64, quote *model.Quote) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", paymenterrors.ErrInvalidID, id)
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "status": model.IntentDue},
		bson.M{"$set": bson.M{
			"amount":     amount,
			"quote":      quote,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to reprice payment intent: %w", err)
	}
	if result.MatchedCount == 0 {
		return paymenterrors.ErrNotFound
	}
	return nil
}

// CancelOthers is the defensive cleanup behind the one-DUE-intent
// invariant: everything DUE for the session except keepID is
// cancelled.
func (r *mongoPaymentIntentRepository) CancelOthers(ctx context.Context, sessionID, keepID string) error {
	keepObjectID, err := primitive.ObjectIDFromHex(keepID)
	if err != nil {
		return fmt.Errorf("%w: %s", paymenterrors.ErrInvalidID, keepID)
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err = r.collection.UpdateMany(ctx,
		bson.M{
			"lane_session_id": sessionID,
			"status":          model.IntentDue,
			"_id":             bson.M{"$ne": keepObjectID},
		},
		bson.M{"$set": bson.M{
			"status":     model.IntentCancelled,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to cancel stale payment intents: %w", err)
	}
	return nil
}

func (r *mongoPaymentIntentRepository) CancelDueBySession(ctx context.Context, sessionID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateMany(ctx,
		bson.M{"lane_session_id": sessionID, "status": model.IntentDue},
		bson.M{"$set": bson.M{
			"status":     model.IntentCancelled,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to cancel due payment intents: %w", err)
	}
	return nil
}

// MarkPaid flips DUE to PAID conditionally; an intent that is not DUE
// anymore yields ErrNotFound and the caller decides whether that means
// already-paid.
func (r *mongoPaymentIntentRepository) MarkPaid(ctx context.Context, id, method string, at time.Time) (*model.PaymentIntent, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", paymenterrors.ErrInvalidID, id)
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var intent model.PaymentIntent
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objectID, "status": model.IntentDue},
		bson.M{"$set": bson.M{
			"status":     model.IntentPaid,
			"method":     method,
			"paid_at":    at,
			"updated_at": time.Now().UTC(),
		}},
		opts,
	).Decode(&intent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, paymenterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to mark payment intent paid: %w", err)
	}
	return &intent, nil
}

// RecordFailure notes a failed attempt. Status stays DUE so the
// customer can try again.
func (r *mongoPaymentIntentRepository) RecordFailure(ctx context.Context, id, reason string, at time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", paymenterrors.ErrInvalidID, id)
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "status": model.IntentDue},
		bson.M{"$set": bson.M{
			"failure_reason": reason,
			"failed_at":      at,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to record payment failure: %w", err)
	}
	if result.MatchedCount == 0 {
		return paymenterrors.ErrNotFound
	}
	return nil
}

func (r *mongoPaymentIntentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
