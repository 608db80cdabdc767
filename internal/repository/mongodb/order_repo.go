package mongodb

import (
	"context"
	"errors"
	"fmt"

	"shop_service/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) InsertOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	o := *order
	o.Items = append([]domain.OrderItem(nil), order.Items...)
	if o.ID == "" {
		o.ID = NewID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	o.UpdatedAt = o.CreatedAt

	doc, err := newOrderDocument(&o)
	if err != nil {
		return nil, domain.InvalidInput("%v", err)
	}
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		s.log.Errorf("Repository: Failed to insert order for user %s: %v", o.UserID, err)
		return nil, fmt.Errorf("could not create order: %w", err)
	}
	s.log.Infof("Repository: Order %s created with %d items", o.ID, len(o.Items))
	return &o, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	var doc orderDocument
	if err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("could not retrieve order: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) ListOrdersByUserID(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.UserID = userID
	return s.ListOrders(ctx, filter)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.orders.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list orders: %w", err)
	}
	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("could not decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for i := range docs {
		o, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	filter := bson.M{"_id": id, "status": string(from)}
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": s.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDocument
	err := s.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("could not update order status: %w", err)
	}

	count, err := s.orders.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("could not check order existence: %w", err)
	}
	if count == 0 {
		return nil, domain.ErrOrderNotFound
	}
	return nil, domain.ErrInvalidStatusTransition
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.orders.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("could not delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
