package repository

import (
	"context"
	"errors"
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/pkg/config"
	"staybook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	AccommodationsCollection = "Accommodations"
	ServicesCollection       = "Accommodation_services"
)

type mongoAccommodationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func newMongoAccommodationRepository(cfg *config.Config, db *mongo.Database) *mongoAccommodationRepository {
	return &mongoAccommodationRepository{
		cfg:        cfg,
		collection: db.Collection(AccommodationsCollection),
	}
}

func (r *mongoAccommodationRepository) FindByID(ctx context.Context, id string) (*model.Accommodation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var accommodation model.Accommodation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&accommodation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrAccommodationNotFound
		}
		return nil, fmt.Errorf("failed to find accommodation: %w", err)
	}
	return &accommodation, nil
}

func (r *mongoAccommodationRepository) Save(ctx context.Context, accommodation *model.Accommodation) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if accommodation.CreatedAt.IsZero() {
		accommodation.CreatedAt = now
	}
	accommodation.UpdatedAt = now

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": accommodation.ID}, accommodation, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save accommodation: %w", err)
	}
	return nil
}

type mongoServiceCatalog struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func newMongoServiceCatalog(cfg *config.Config, db *mongo.Database) *mongoServiceCatalog {
	return &mongoServiceCatalog{
		cfg:        cfg,
		collection: db.Collection(ServicesCollection),
	}
}

func (r *mongoServiceCatalog) PriceOf(ctx context.Context, accommodationID string, serviceIDs []string) ([]model.AddOnService, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"_id":              bson.M{"$in": serviceIDs},
		"accommodation_id": accommodationID,
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}
	defer cursor.Close(ctx)

	var found []model.AddOnService
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}

	return orderServices(serviceIDs, found)
}

func (r *mongoServiceCatalog) Save(ctx context.Context, service *model.AddOnService) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": service.ID}, service, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save service: %w", err)
	}
	return nil
}

// orderServices returns found in the order of ids, failing on any missing id.
func orderServices(ids []string, found []model.AddOnService) ([]model.AddOnService, error) {
	byID := make(map[string]model.AddOnService, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}

	ordered := make([]model.AddOnService, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", reserrors.ErrServiceNotFound, id)
		}
		ordered = append(ordered, s)
	}
	return ordered, nil
}
