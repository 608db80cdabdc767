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

// GetCart upserts an empty cart keyed by user id. Two concurrent first
// accesses can both attempt the insert; the loser sees a duplicate key error
// and reads the winner's document.
func (s *Store) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	update := bson.M{"$setOnInsert": bson.M{"items": bson.A{}, "updated_at": s.now()}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc cartDocument
	err := s.carts.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.carts.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
		}
		s.log.Errorf("Repository: Failed to get cart for user %s: %v", userID, err)
		return nil, fmt.Errorf("could not read cart: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) SaveCart(ctx context.Context, cart *domain.Cart) error {
	update := bson.M{"$set": bson.M{"items": cartItemDocuments(cart.Items), "updated_at": s.now()}}
	if _, err := s.carts.UpdateOne(ctx, bson.M{"_id": cart.UserID}, update, options.Update().SetUpsert(true)); err != nil {
		s.log.Errorf("Repository: Failed to save cart for user %s: %v", cart.UserID, err)
		return fmt.Errorf("could not save cart: %w", err)
	}
	return nil
}
