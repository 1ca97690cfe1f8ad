package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sessionerrors "lanedesk/internal/lanesession/errors"
	"lanedesk/pkg/config"
	mongotx "lanedesk/pkg/db/mongo"
	"lanedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "LaneSessions"

type LaneSessionRepository interface {
	Create(ctx context.Context, session *model.LaneSession) error
	FindByID(ctx context.Context, id string) (*model.LaneSession, error)
	FindNonTerminalByID(ctx context.Context, id string) (*model.LaneSession, error)
	FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error)
	FindMostRecentByLane(ctx context.Context, laneID string) (*model.LaneSession, error)
	UpdateProposal(ctx context.Context, id, tier, proposedBy, waitlistTier, backupTier string) error
	LockSelection(ctx context.Context, id, confirmedBy string, lockedAt time.Time) (*model.LaneSession, error)
	SetResourceRef(ctx context.Context, id, resourceID, kind string) error
	ClearResourceRef(ctx context.Context, id string) error
	SetPaymentRef(ctx context.Context, id, intentID string, quote *model.Quote) error
	UpdateStatus(ctx context.Context, id, status string) error
	SetKioskAck(ctx context.Context, id string, at time.Time) error
	SetPastDueBypass(ctx context.Context, id, bypassedBy string, at time.Time) error
	Reset(ctx context.Context, id string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoLaneSessionRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoLaneSessionRepository(cfg *config.Config) LaneSessionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLaneSessionRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless already inside a
// transaction; a SessionContext must not be re-wrapped.
func (r *mongoLaneSessionRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoLaneSessionRepository) Create(ctx context.Context, session *model.LaneSession) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	session.CreatedAt = now
	session.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to create lane session: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		session.ID = oid.Hex()
	}
	return nil
}

func (r *mongoLaneSessionRepository) FindByID(ctx context.Context, id string) (*model.LaneSession, error) {
	return r.findOne(ctx, bson.M{}, id)
}

// FindNonTerminalByID fetches a session only while it is still live.
// A session completed by an earlier call is invisible here, which is
// what turns a retried commit into NotFound.
func (r *mongoLaneSessionRepository) FindNonTerminalByID(ctx context.Context, id string) (*model.LaneSession, error) {
	return r.findOne(ctx, bson.M{"status": bson.M{"$in": model.NonTerminalStatuses}}, id)
}

func (r *mongoLaneSessionRepository) findOne(ctx context.Context, filter bson.M, id string) (*model.LaneSession, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sessionerrors.ErrInvalidID, id)
	}
	filter["_id"] = objectID

	var session model.LaneSession
	err = r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sessionerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find lane session: %w", err)
	}
	return &session, nil
}

// FindCurrentByLane returns the one non-terminal session owning the
// lane. The unique partial index on lane_id guarantees at most one.
func (r *mongoLaneSessionRepository) FindCurrentByLane(ctx context.Context, laneID string) (*model.LaneSession, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"lane_id": laneID,
		"status":  bson.M{"$in": model.NonTerminalStatuses},
	}

	var session model.LaneSession
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sessionerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find current lane session: %w", err)
	}
	return &session, nil
}

func (r *mongoLaneSessionRepository) FindMostRecentByLane(ctx context.Context, laneID string) (*model.LaneSession, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var session model.LaneSession
	err := r.collection.FindOne(ctx, bson.M{"lane_id": laneID}, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sessionerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find most recent lane session: %w", err)
	}
	return &session, nil
}

// UpdateProposal overwrites the proposal only while the selection is
// still unconfirmed. The lock is monotonic: a propose whose write
// lands after a concurrent confirm matches nothing and surfaces as
// ErrSelectionLocked instead of silently rewriting a locked session.
func (r *mongoLaneSessionRepository) UpdateProposal(ctx context.Context, id, tier, proposedBy, waitlistTier, backupTier string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", sessionerrors.ErrInvalidID, id)
	}

	set := bson.M{
		"proposed_tier": tier,
		"proposed_by":   proposedBy,
		"updated_at":    time.Now().UTC(),
	}
	if waitlistTier != "" {
		set["waitlist_tier"] = waitlistTier
	}
	if backupTier != "" {
		set["backup_tier"] = backupTier
	}

	filter := bson.M{"_id": objectID, "selection_confirmed": false}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update proposal: %w", err)
	}
	if result.MatchedCount == 0 {
		return sessionerrors.ErrSelectionLocked
	}
	return nil
}

// LockSelection performs the confirm atomically: it matches only while
// the selection is still unconfirmed and a proposal exists, and
// snapshots proposed_tier into desired_tier in the same update. A lost
// race surfaces as ErrNotFound; the caller re-reads the winner's lock.
func (r *mongoLaneSessionRepository) LockSelection(ctx context.Context, id, confirmedBy string, lockedAt time.Time) (*model.LaneSession, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sessionerrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":                 objectID,
		"selection_confirmed": false,
		"proposed_tier":       bson.M{"$gt": ""},
	}
	update := []bson.M{{
		"$set": bson.M{
			"selection_confirmed": true,
			"confirmed_by":        confirmedBy,
			"locked_at":           lockedAt,
			"desired_tier":        "$proposed_tier",
			"status":              model.SessionAwaitingAssign,
			"updated_at":          time.Now().UTC(),
		},
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session model.LaneSession
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sessionerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock selection: %w", err)
	}
	return &session, nil
}

func (r *mongoLaneSessionRepository) SetResourceRef(ctx context.Context, id, resourceID, kind string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"resource_id":   resourceID,
		"resource_kind": kind,
	}})
}

func (r *mongoLaneSessionRepository) ClearResourceRef(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{"$unset": bson.M{
		"resource_id":   "",
		"resource_kind": "",
	}})
}

func (r *mongoLaneSessionRepository) SetPaymentRef(ctx context.Context, id, intentID string, quote *model.Quote) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"payment_intent_id": intentID,
		"quote_snapshot":    quote,
	}})
}

func (r *mongoLaneSessionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"status": status}})
}

func (r *mongoLaneSessionRepository) SetKioskAck(ctx context.Context, id string, at time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{"kiosk_ack_at": at}})
}

func (r *mongoLaneSessionRepository) SetPastDueBypass(ctx context.Context, id, bypassedBy string, at time.Time) error {
	return r.updateByID(ctx, id, bson.M{"$set": bson.M{
		"past_due_bypassed":    true,
		"past_due_bypassed_by": bypassedBy,
		"past_due_bypassed_at": at,
	}})
}

// Reset forces the session to COMPLETED and clears every negotiation,
// assignment and payment field.
func (r *mongoLaneSessionRepository) Reset(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			"status":              model.SessionCompleted,
			"selection_confirmed": false,
			"past_due_bypassed":   false,
			"membership_purchase": false,
		},
		"$unset": bson.M{
			"desired_tier":         "",
			"waitlist_tier":        "",
			"backup_tier":          "",
			"proposed_tier":        "",
			"proposed_by":          "",
			"confirmed_by":         "",
			"locked_at":            "",
			"resource_id":          "",
			"resource_kind":        "",
			"payment_intent_id":    "",
			"quote_snapshot":       "",
			"past_due_bypassed_by": "",
			"past_due_bypassed_at": "",
			"kiosk_ack_at":         "",
		},
	})
}

func (r *mongoLaneSessionRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", sessionerrors.ErrInvalidID, id)
	}

	if set, ok := update["$set"].(bson.M); ok {
		set["updated_at"] = time.Now().UTC()
	} else {
		update["$set"] = bson.M{"updated_at": time.Now().UTC()}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update lane session: %w", err)
	}
	if result.MatchedCount == 0 {
		return sessionerrors.ErrNotFound
	}
	return nil
}

func (r *mongoLaneSessionRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
