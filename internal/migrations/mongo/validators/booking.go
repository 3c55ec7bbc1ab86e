package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = bson.A{"int", "long"}

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"accommodation_id",
			"guest_id",
			"check_in",
			"check_out",
			"state",
			"total_price",
			"currency",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"accommodation_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"guest_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"check_in": bson.M{
				"bsonType": "date",
			},

			"check_out": bson.M{
				"bsonType": "date",
			},

			"state": bson.M{
				"enum": []string{"PENDING", "CONFIRMED", "CHECK_IN", "CHECK_OUT", "CANCELLED"},
			},

			"total_price": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"currency": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 3,
			},

			"payment_confirmed": bson.M{
				"bsonType": "bool",
			},

			"cancellation_reason": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"detail": bson.M{
				"bsonType": "object",
				"required": []string{"booking_id", "nights", "guest_count", "total"},
				"properties": bson.M{
					"nights":      bson.M{"bsonType": integer, "minimum": 1},
					"guest_count": bson.M{"bsonType": integer, "minimum": 1},
					"total":       bson.M{"bsonType": integer, "minimum": 0},
					"add_ons": bson.M{
						"bsonType": "array",
						"items": bson.M{
							"bsonType": "object",
							"required": []string{"service_id", "price"},
						},
					},
				},
			},

			"version": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var VoucherValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"booking_id", "total", "currency", "payment_reference", "issued_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"booking_id":        bson.M{"bsonType": "string"},
			"total":             bson.M{"bsonType": integer, "minimum": 0},
			"currency":          bson.M{"bsonType": "string", "minLength": 3, "maxLength": 3},
			"payment_reference": bson.M{"bsonType": "string", "minLength": 1},
			"issued_at":         bson.M{"bsonType": "date"},
		},
	},
}
