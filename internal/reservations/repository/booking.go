package repository

import (
	"context"
	"errors"
	"fmt"
	"staybook/internal/reservations/calendar"
	reserrors "staybook/internal/reservations/errors"
	"staybook/pkg/config"
	"staybook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BookingsCollection = "Bookings"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func newMongoBookingRepository(cfg *config.Config, db *mongo.Database) *mongoBookingRepository {
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(BookingsCollection),
	}
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

// FindActiveBookings pushes the half-open overlap predicate down to MongoDB:
// check_in < rng.CheckOut AND check_out > rng.CheckIn.
func (r *mongoBookingRepository) FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	filter := bson.M{
		"accommodation_id": accommodationID,
		"state":            bson.M{"$in": calendar.ActiveStates()},
		"check_in":         bson.M{"$lt": rng.CheckOut},
		"check_out":        bson.M{"$gt": rng.CheckIn},
	}
	return r.find(ctx, filter, 0)
}

func (r *mongoBookingRepository) FindDueForCheckIn(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error) {
	filter := bson.M{
		"state":    model.StateConfirmed,
		"check_in": bson.M{"$lte": asOf},
	}
	return r.find(ctx, filter, limit)
}

func (r *mongoBookingRepository) FindDueForCheckOut(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error) {
	filter := bson.M{
		"state":     model.StateCheckIn,
		"check_out": bson.M{"$lte": asOf},
	}
	return r.find(ctx, filter, limit)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, limit int) ([]*model.Booking, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "check_in", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Insert(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: booking %s already exists", reserrors.ErrStaleBooking, booking.ID)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	expected := booking.Version
	next := *booking
	next.Version = expected + 1

	filter := bson.M{"_id": booking.ID, "version": expected}
	result, err := r.collection.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: booking %s version %d", reserrors.ErrStaleBooking, booking.ID, expected)
	}

	booking.Version = next.Version
	return nil
}
