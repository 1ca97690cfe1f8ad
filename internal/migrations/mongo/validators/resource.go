package validators

import "go.mongodb.org/mongo-driver/bson"

var ResourceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"number",
			"kind",
			"tier",
			"status",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"number": bson.M{
				"bsonType": "int",
				"minimum":  1,
			},

			"kind": bson.M{
				"bsonType": "string",
				"enum": []string{
					"room",
					"locker",
				},
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

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"CLEAN",
					"DIRTY",
					"CLEANING",
					"OCCUPIED",
				},
			},

			"assigned_customer": bson.M{
				"bsonType": "string",
			},

			"held_by_session": bson.M{
				"bsonType": "string",
			},
		},
	},
}
