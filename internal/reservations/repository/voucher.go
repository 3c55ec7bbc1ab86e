package repository

import (
	"context"
	"errors"
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/pkg/config"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	VouchersCollection = "Vouchers"
)

type mongoVoucherRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func newMongoVoucherRepository(cfg *config.Config, db *mongo.Database) *mongoVoucherRepository {
	return &mongoVoucherRepository{
		cfg:        cfg,
		collection: db.Collection(VouchersCollection),
	}
}

func (r *mongoVoucherRepository) FindByBookingID(ctx context.Context, bookingID string) (*model.Voucher, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var voucher model.Voucher
	err := r.collection.FindOne(ctx, bson.M{"booking_id": bookingID}).Decode(&voucher)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrVoucherNotFound
		}
		return nil, fmt.Errorf("failed to find voucher: %w", err)
	}
	return &voucher, nil
}

// Insert relies on the unique booking_id index created by the migrations.
func (r *mongoVoucherRepository) Insert(ctx context.Context, voucher *model.Voucher) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, voucher); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", reserrors.ErrVoucherExists, voucher.BookingID)
		}
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	return nil
}
