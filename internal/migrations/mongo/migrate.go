package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lanedesk/internal/migrations/mongo/validators"
)

var (
	// One live session per lane, enforced at the storage layer. The
	// partial filter keeps settled sessions out of the uniqueness
	// check so lane history accumulates freely.
	LaneSessionsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "lane_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": []string{"ACTIVE", "AWAITING_ASSIGNMENT", "AWAITING_PAYMENT", "AWAITING_SIGNATURE"}},
			}),
		},
		{Keys: bson.D{{Key: "lane_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	ResourcesIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "tier", Value: 1}, {Key: "status", Value: 1}, {Key: "number", Value: 1}}},
		{Keys: bson.D{{Key: "held_by_session", Value: 1}}},
	}

	// One DUE intent per session at any time.
	PaymentIntentsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "lane_session_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"status": "DUE",
			}),
		},
		{Keys: bson.D{{Key: "lane_session_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}

	VisitsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "closed_at", Value: 1}}},
	}

	OccupancyBlocksIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "visit_id", Value: 1}, {Key: "end_time", Value: -1}}},
		{Keys: bson.D{{Key: "end_time", Value: 1}}},
	}

	AgreementsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "lane_session_id", Value: 1}}},
	}

	CustomersIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "scan_hash", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"scan_hash": bson.M{"$exists": true},
			}),
		},
		{Keys: bson.D{{Key: "membership_number", Value: 1}}},
	}

	WaitlistEntriesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "desired_tier", Value: 1}, {Key: "status", Value: 1}, {Key: "stay_ends_at", Value: 1}}},
	}

	// Advisory locks evaporate on their own if a holder dies before
	// releasing.
	LaneLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	AuditLogIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "lane_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "lane_session_id", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	fmt.Printf("🚀 Running LaneDesk Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		"LaneSessions": {
			Indexes:   LaneSessionsIndexes,
			Validator: validators.LaneSessionValidator,
		},
		"Resources": {
			Indexes:   ResourcesIndexes,
			Validator: validators.ResourceValidator,
		},
		"PaymentIntents": {
			Indexes:   PaymentIntentsIndexes,
			Validator: validators.PaymentIntentValidator,
		},
		"Visits": {
			Indexes:   VisitsIndexes,
			Validator: validators.VisitValidator,
		},
		"OccupancyBlocks": {
			Indexes:   OccupancyBlocksIndexes,
			Validator: validators.OccupancyBlockValidator,
		},
		"Agreements": {
			Indexes: AgreementsIndexes,
		},
		"Customers": {
			Indexes:   CustomersIndexes,
			Validator: validators.CustomerValidator,
		},
		"WaitlistEntries": {
			Indexes: WaitlistEntriesIndexes,
		},
		"LaneLocks": {
			Indexes: LaneLocksIndexes,
		},
		"AuditLog": {
			Indexes: AuditLogIndexes,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	fmt.Println("✅ All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("🆕 Creating collection: %s\n", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts = opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator != nil {
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("⚠️ Warning: failed updating validator for %s: %v\n", name, err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	_, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	fmt.Printf("📚 Ensured indexes for %s\n", name)
	return nil
}
