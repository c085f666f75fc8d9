package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakan-app/sakan-backend/internal/observability"
)

// ListingCatalog holds the marketing side of a property: title, copy,
// location and media. The ledger stays the source of truth for price
// and availability.
type ListingCatalog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewListingCatalog(db *mongo.Database, logger observability.Logger) *ListingCatalog {
	return &ListingCatalog{
		coll:   db.Collection("listings"),
		logger: logger,
	}
}

type ListingDoc struct {
	ID          uuid.UUID `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	City        string    `bson:"city"`
	District    string    `bson:"district"`
	Address     string    `bson:"address"`
	Media       []string  `bson:"media"`
	OwnerID     uuid.UUID `bson:"owner_id"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (c *ListingCatalog) GetListing(ctx context.Context, id uuid.UUID) (*ListingDoc, error) {
	var listing ListingDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (c *ListingCatalog) UpsertListing(ctx context.Context, listing ListingDoc) error {
	listing.UpdatedAt = time.Now()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = listing.UpdatedAt
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": listing.ID}, listing, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.Error("failed to upsert listing", err)
	}
	return err
}

// AddMedia appends an uploaded file's public URL to the listing.
func (c *ListingCatalog) AddMedia(ctx context.Context, id uuid.UUID, url string) error {
	_, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"media": url}, "$set": bson.M{"updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.Error("failed to add listing media", err)
	}
	return err
}

func (c *ListingCatalog) RemoveMedia(ctx context.Context, id uuid.UUID, url string) error {
	_, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$pull": bson.M{"media": url}, "$set": bson.M{"updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.Error("failed to remove listing media", err)
	}
	return err
}
