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

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	u := *user
	if u.ID == "" {
		u.ID = NewID()
	}
	u.CreatedAt = s.now()

	doc := userDocument{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		Email:          u.Email,
		HashedPassword: u.PasswordHash,
		Role:           string(u.Role),
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: email '%s'", domain.ErrUserExists, u.Email)
		}
		return nil, fmt.Errorf("could not create user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("could not retrieve user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = string(filter.Role)
	}
	if filter.ActiveOnly {
		query["is_active"] = true
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.users.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list users: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("could not decode users: %w", err)
	}
	users := make([]domain.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].toDomain())
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	set := bson.M{}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.FullName != nil {
		set["fullName"] = *update.FullName
	}
	if update.Role != nil {
		set["role"] = string(*update.Role)
	}
	if update.IsActive != nil {
		set["is_active"] = *update.IsActive
	}
	if len(set) == 0 {
		return s.GetUserByID(ctx, id)
	}

	var doc userDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("could not update user: %w", err)
	}
	return doc.toDomain(), nil
}
