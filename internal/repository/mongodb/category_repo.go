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

func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	c := *category
	if c.ID == "" {
		c.ID = NewID()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now

	doc := categoryDocument{ID: c.ID, Name: c.Name, Description: c.Description, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
	if _, err := s.categories.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.log.Warnf("Repository: Attempted to create duplicate category: %s", c.Name)
			return nil, fmt.Errorf("%w: '%s'", domain.ErrCategoryExists, c.Name)
		}
		s.log.Errorf("Repository: Failed to create category '%s': %v", c.Name, err)
		return nil, fmt.Errorf("could not create category: %w", err)
	}
	return &c, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	return s.findCategory(ctx, bson.M{"_id": id})
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	return s.findCategory(ctx, bson.M{"name": name})
}

func (s *Store) findCategory(ctx context.Context, filter bson.M) (*domain.Category, error) {
	var doc categoryDocument
	err := s.categories.FindOne(ctx, filter, options.FindOne().SetCollation(caseInsensitive)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("could not retrieve category: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, update domain.CategoryUpdate) (*domain.Category, error) {
	set := bson.M{"updated_at": s.now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}

	var doc categoryDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.categories.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, domain.ErrCategoryNotFound
		case mongo.IsDuplicateKeyError(err):
			return nil, domain.ErrCategoryExists
		}
		s.log.Errorf("Repository: Failed to update category %s: %v", id, err)
		return nil, fmt.Errorf("could not update category: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.categories.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("could not delete category: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cursor, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("could not list categories: %w", err)
	}
	var docs []categoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("could not decode categories: %w", err)
	}
	out := make([]domain.Category, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toDomain())
	}
	return out, nil
}
