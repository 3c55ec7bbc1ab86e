package validators

import "go.mongodb.org/mongo-driver/bson"

var AccommodationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"host_id", "name", "nightly_rate", "currency", "max_guests", "approval_status", "operational_status"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":          bson.M{"bsonType": "string"},
			"host_id":      bson.M{"bsonType": "string"},
			"name":         bson.M{"bsonType": "string", "minLength": 2, "maxLength": 200},
			"nightly_rate": bson.M{"bsonType": integer, "minimum": 0},
			"currency":     bson.M{"bsonType": "string", "minLength": 3, "maxLength": 3},
			"max_guests":   bson.M{"bsonType": integer, "minimum": 1},
			"approval_status": bson.M{
				"enum": []string{"pending_approval", "approved", "rejected"},
			},
			"operational_status": bson.M{
				"enum": []string{"operational", "suspended", "deleted"},
			},
			"instant_book": bson.M{"bsonType": "bool"},
			"created_at":   bson.M{"bsonType": "date"},
		},
	},
}

var ServiceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"accommodation_id", "name", "price"},
		"additionalProperties": true,
		"properties": bson.M{
			"accommodation_id": bson.M{"bsonType": "string"},
			"name":             bson.M{"bsonType": "string", "maxLength": 200},
			"price":            bson.M{"bsonType": integer, "minimum": 0},
		},
	},
}
