package validators

import "go.mongodb.org/mongo-driver/bson"

var VisitValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"customer_id",
			"opened_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"customer_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"opened_at": bson.M{
				"bsonType": "date",
			},

			"closed_at": bson.M{
				"bsonType": []string{"date", "null"},
			},
		},
	},
}

var OccupancyBlockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"visit_id",
			"start_time",
			"end_time",
			"tier",
			"resource_id",
			"resource_kind",
			"lane_session_id",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"visit_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"start_time": bson.M{
				"bsonType": "date",
			},

			"end_time": bson.M{
				"bsonType": "date",
			},

			"tier": bson.M{
				"bsonType": "string",
				"enum": []string{
					"STANDARD",
					"DOUBLE",
					"SPECIAL",
					"LOCKER",
				},
			},

			"resource_kind": bson.M{
				"bsonType": "string",
				"enum": []string{
					"room",
					"locker",
				},
			},

			"agreement_signed": bson.M{
				"bsonType": "bool",
			},
		},
	},
}
