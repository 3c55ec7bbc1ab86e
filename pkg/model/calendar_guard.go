package model

import "time"

// CalendarGuard is a per-accommodation document bumped at the start of every
// calendar transaction. Two transactions on the same accommodation both write
// it, so the database aborts one of them with a write conflict.
type CalendarGuard struct {
	AccommodationID string    `bson:"_id" json:"accommodation_id"`
	Version         int64     `bson:"version" json:"version"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}
