package mongo

import (
	"context"
	"errors"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartLineDoc struct {
	ProductID string               `bson:"id"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
	Quantity  int                  `bson:"quantity"`
	ImageURL  string               `bson:"image"`
}

type cartDoc struct {
	ID        string        `bson:"_id"`
	Items     []cartLineDoc `bson:"items"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type CartStore struct {
	Collection *mongo.Collection
}

func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{Collection: db.Collection(collectionCarts)}
}

func (s *CartStore) Load(ctx context.Context, id string) (*domain.Cart, error) {
	var doc cartDoc
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.New(id), nil
	}
	if err != nil {
		return nil, err
	}

	c := &domain.Cart{ID: doc.ID, Lines: make([]domain.Line, 0, len(doc.Items)), UpdatedAt: doc.UpdatedAt}
	for _, it := range doc.Items {
		c.Lines = append(c.Lines, domain.Line{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     fromDecimal128(it.Price),
			Quantity:  it.Quantity,
			ImageURL:  it.ImageURL,
		})
	}
	return c, nil
}

func (s *CartStore) Save(ctx context.Context, c *domain.Cart) error {
	if c == nil || c.ID == "" {
		return domain.ErrInvalidLine
	}
	doc := cartDoc{ID: c.ID, Items: make([]cartLineDoc, 0, len(c.Lines)), UpdatedAt: c.UpdatedAt}
	for _, l := range c.Lines {
		doc.Items = append(doc.Items, cartLineDoc{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     toDecimal128(l.Price),
			Quantity:  l.Quantity,
			ImageURL:  l.ImageURL,
		})
	}
	_, err := s.Collection.ReplaceOne(ctx, bson.M{"_id": c.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *CartStore) Delete(ctx context.Context, id string) error {
	_, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
