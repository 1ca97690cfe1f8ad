package validators

import "go.mongodb.org/mongo-driver/bson"

var PaymentIntentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"lane_session_id",
			"amount",
			"status",
			"quote",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"lane_session_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"amount": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"DUE",
					"PAID",
					"CANCELLED",
				},
			},

			"quote": bson.M{
				"bsonType": "object",
				"required": []string{"amount", "purpose"},
				"properties": bson.M{
					"purpose": bson.M{
						"bsonType": "string",
						"enum": []string{
							"CHECKIN",
							"UPGRADE",
							"FINAL_EXTENSION",
							"SETTLEMENT",
						},
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
