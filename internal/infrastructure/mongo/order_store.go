package mongo

import (
	"context"
	"errors"
	"time"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var allStatuses = []domain.Status{
	domain.StatusPaymentPending,
	domain.StatusAwaitingPreparation,
	domain.StatusPaymentReceived,
	domain.StatusFulfilled,
}

type lineDoc struct {
	ProductID string               `bson:"id"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
	Quantity  int                  `bson:"quantity"`
	ImageURL  string               `bson:"image"`
}

type orderDoc struct {
	ID               string               `bson:"_id"`
	UserID           *string              `bson:"user_id"`
	Items            []lineDoc            `bson:"items"`
	Total            primitive.Decimal128 `bson:"total_amount"`
	Status           string               `bson:"status"`
	PaymentSessionID string               `bson:"stripe_session_id,omitempty"`
	CreatedAt        time.Time            `bson:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at"`
}

func toOrderDoc(o *domain.Order) orderDoc {
	items := make([]lineDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, lineDoc{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     toDecimal128(l.Price),
			Quantity:  l.Quantity,
			ImageURL:  l.ImageURL,
		})
	}
	return orderDoc{
		ID:               o.ID,
		UserID:           o.UserID,
		Items:            items,
		Total:            toDecimal128(o.Total),
		Status:           string(o.Status),
		PaymentSessionID: o.PaymentSessionID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func (d orderDoc) toDomain() *domain.Order {
	lines := make([]domain.Line, 0, len(d.Items))
	for _, it := range d.Items {
		lines = append(lines, domain.Line{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     fromDecimal128(it.Price),
			Quantity:  it.Quantity,
			ImageURL:  it.ImageURL,
		})
	}
	return &domain.Order{
		ID:               d.ID,
		UserID:           d.UserID,
		Lines:            lines,
		Total:            fromDecimal128(d.Total),
		Status:           domain.Status(d.Status),
		PaymentSessionID: d.PaymentSessionID,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type OrderStore struct {
	Collection *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{Collection: db.Collection(collectionOrders)}
}

func (s *OrderStore) Insert(ctx context.Context, order *domain.Order) error {
	_, err := s.Collection.InsertOne(ctx, toOrderDoc(order))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	return err
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	var doc orderDoc
	err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// UpdateStatus only matches documents whose current status may move to
// status, which keeps the lifecycle forward-only without a read first.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.Status, sessionID string) (*domain.Order, error) {
	from := make([]string, 0, len(allStatuses))
	for _, st := range allStatuses {
		if domain.CanTransition(st, status) {
			from = append(from, string(st))
		}
	}
	if len(from) == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	order, err := s.transition(ctx, bson.M{"_id": id, "status": bson.M{"$in": from}}, status, sessionID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrInvalidStateTransition
	}
	return order, err
}

func (s *OrderStore) Claim(ctx context.Context, id string, from, to domain.Status, sessionID string) (*domain.Order, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.ErrInvalidStateTransition
	}
	order, err := s.transition(ctx, bson.M{"_id": id, "status": string(from)}, to, sessionID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrConflict
	}
	return order, err
}

func (s *OrderStore) transition(ctx context.Context, filter bson.M, to domain.Status, sessionID string) (*domain.Order, error) {
	set := bson.M{"status": string(to), "updated_at": time.Now().UTC()}
	if sessionID != "" {
		set["stripe_session_id"] = sessionID
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDoc
	if err := s.Collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.find(ctx, bson.M{"user_id": userID})
}

func (s *OrderStore) List(ctx context.Context) ([]*domain.Order, error) {
	return s.find(ctx, bson.M{})
}

func (s *OrderStore) find(ctx context.Context, filter bson.M) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
