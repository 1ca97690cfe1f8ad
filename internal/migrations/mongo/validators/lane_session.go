package validators

import "go.mongodb.org/mongo-driver/bson"

var LaneSessionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"lane_id",
			"status",
			"mode",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"lane_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 32,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"ACTIVE",
					"AWAITING_ASSIGNMENT",
					"AWAITING_PAYMENT",
					"AWAITING_SIGNATURE",
					"COMPLETED",
					"CANCELLED",
				},
			},

			"mode": bson.M{
				"bsonType": "string",
				"enum": []string{
					"INITIAL",
					"RENEWAL",
				},
			},

			"customer_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"customer_name": bson.M{
				"bsonType":  "string",
				"maxLength": 100,
			},

			"desired_tier": bson.M{
				"bsonType": "string",
				"enum": []string{
					"STANDARD",
					"DOUBLE",
					"SPECIAL",
					"LOCKER",
				},
			},

			"proposed_by": bson.M{
				"bsonType": "string",
				"enum": []string{
					"CUSTOMER",
					"EMPLOYEE",
				},
			},

			"confirmed_by": bson.M{
				"bsonType": "string",
				"enum": []string{
					"CUSTOMER",
					"EMPLOYEE",
				},
			},

			"selection_confirmed": bson.M{
				"bsonType": "bool",
			},

			"past_due_bypassed": bson.M{
				"bsonType": "bool",
			},

			"membership_purchase": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
