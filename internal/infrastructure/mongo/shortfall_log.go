package mongo

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const shortfallListLimit = 500

type shortfallDoc struct {
	OrderID    string    `bson:"order_id"`
	SessionID  string    `bson:"session_id"`
	ProductID  string    `bson:"product_id"`
	Quantity   int       `bson:"quantity"`
	Reason     string    `bson:"reason"`
	OccurredAt time.Time `bson:"occurred_at"`
}

type ShortfallLog struct {
	Collection *mongo.Collection
}

func NewShortfallLog(db *mongo.Database) *ShortfallLog {
	return &ShortfallLog{Collection: db.Collection(collectionShortfalls)}
}

func (l *ShortfallLog) Record(ctx context.Context, s domain.Shortfall) error {
	_, err := l.Collection.InsertOne(ctx, shortfallDoc(s))
	return err
}

func (l *ShortfallLog) List(ctx context.Context) ([]domain.Shortfall, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(shortfallListLimit)
	cursor, err := l.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []shortfallDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Shortfall, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Shortfall(d))
	}
	return out, nil
}
