package products

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding products.
const Collection = "products"

type document struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Description string             `bson:"description"`
	Price       float64            `bson:"price"`
	Stock       int                `bson:"stock"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d document) product() Product {
	return Product{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Stock:       d.Stock,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Repository is the MongoDB Store.
type Repository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewRepository creates a Repository over the products collection of db.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{coll: db.Collection(Collection), now: time.Now}
}

// EnsureIndexes creates the index backing newest-first listing.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create products index: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := []Product{}
	for cur.Next(ctx) {
		var d document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		out = append(out, d.product())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, in CreateInput) (Product, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	d := document{
		ID:          primitive.NewObjectID(),
		Name:        in.Name,
		Description: in.Description,
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Price != nil {
		d.Price = *in.Price
	}

	if _, err := r.coll.InsertOne(ctx, d); err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return d.product(), nil
}

func (r *Repository) Get(ctx context.Context, id string) (Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Product{}, ErrNotFound
	}

	var d document
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return d.product(), nil
}
