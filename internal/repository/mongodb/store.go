package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ domain.Store              = (*Store)(nil)
	_ domain.UserRepository     = (*Store)(nil)
	_ domain.CategoryRepository = (*Store)(nil)
)

// Store has no multi-document transactions; pair it with the compensating
// transactor.
type Store struct {
	products   *mongo.Collection
	categories *mongo.Collection
	carts      *mongo.Collection
	orders     *mongo.Collection
	users      *mongo.Collection
	now        func() time.Time
	log        *logrus.Logger
}

func NewStore(db *mongo.Database, logger *logrus.Logger) *Store {
	return &Store{
		products:   db.Collection("products"),
		categories: db.Collection("categories"),
		carts:      db.Collection("carts"),
		orders:     db.Collection("orders"),
		users:      db.Collection("users"),
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		log:        logger,
	}
}

// caseInsensitive makes category names compare without regard to case.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.products, mongo.IndexModel{Keys: bson.D{{Key: "category", Value: 1}}}},
		{s.categories, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true).SetCollation(caseInsensitive)}},
		{s.orders, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("could not create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	p := *product
	if p.ID == "" {
		p.ID = NewID()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	doc, err := newProductDocument(&p)
	if err != nil {
		return nil, domain.InvalidInput("%v", err)
	}
	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		s.log.Errorf("Repository: Failed to create product '%s': %v", p.Name, err)
		return nil, fmt.Errorf("could not create product: %w", err)
	}
	s.log.Infof("Repository: Product created with ID %s", p.ID)
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDocument
	if err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("could not retrieve product: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) UpdateProduct(ctx context.Context, id string, update domain.ProductUpdate) (*domain.Product, error) {
	set := bson.M{"updated_at": s.now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Price != nil {
		price, err := toDecimal128(*update.Price)
		if err != nil {
			return nil, domain.InvalidInput("%v", err)
		}
		set["price"] = price
	}
	if update.Category != nil {
		set["category"] = *update.Category
	}
	if update.ImageURL != nil {
		set["image_url"] = *update.ImageURL
	}
	if update.IsActive != nil {
		set["is_active"] = *update.IsActive
	}

	var doc productDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.products.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProductNotFound
		}
		s.log.Errorf("Repository: Failed to update product %s: %v", id, err)
		return nil, fmt.Errorf("could not update product: %w", err)
	}
	return doc.toDomain()
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"is_active": false, "updated_at": s.now()}})
	if err != nil {
		return fmt.Errorf("could not delete product: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["is_active"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.products.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list products: %w", err)
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("could not decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for i := range docs {
		p, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// AdjustStock matches only documents whose stock can absorb delta, then
// increments in the same server-side operation.
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	return s.adjustStock(ctx, bson.M{"_id": id}, id, delta, nil)
}

// AdjustStockTagged pushes tag onto the product in the same update that moves
// the stock, so the tag is present exactly when the adjustment happened.
func (s *Store) AdjustStockTagged(ctx context.Context, id string, delta int, tag string) (*domain.Product, error) {
	return s.adjustStock(ctx, bson.M{"_id": id}, id, delta, bson.M{"$push": bson.M{"stock_tags": tag}})
}

// RevertStockTag applies -delta and pulls tag in one update matched on the
// tag, so a second call finds nothing to do.
func (s *Store) RevertStockTag(ctx context.Context, id, tag string, delta int) (bool, error) {
	_, err := s.adjustStock(ctx, bson.M{"_id": id, "stock_tags": tag}, id, -delta, bson.M{"$pull": bson.M{"stock_tags": tag}})
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, domain.ErrStockWouldGoNegative) {
		return false, err
	}
	tagged, err := s.products.CountDocuments(ctx, bson.M{"_id": id, "stock_tags": tag})
	if err != nil {
		return false, fmt.Errorf("could not check stock tag: %w", err)
	}
	if tagged > 0 {
		return false, domain.ErrStockWouldGoNegative
	}
	return false, nil
}

func (s *Store) ReleaseStockTag(ctx context.Context, id, tag string) error {
	if _, err := s.products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"stock_tags": tag}}); err != nil {
		return fmt.Errorf("could not release stock tag: %w", err)
	}
	return nil
}

func (s *Store) adjustStock(ctx context.Context, filter bson.M, id string, delta int, extra bson.M) (*domain.Product, error) {
	if delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"stock": delta},
		"$set": bson.M{"updated_at": s.now()},
	}
	for op, fields := range extra {
		update[op] = fields
	}

	var doc productDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		s.log.Errorf("Repository: Failed to adjust stock of product %s by %d: %v", id, delta, err)
		return nil, fmt.Errorf("could not adjust stock: %w", err)
	}

	count, err := s.products.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("could not check product existence: %w", err)
	}
	if count == 0 {
		return nil, domain.ErrProductNotFound
	}
	return nil, domain.ErrStockWouldGoNegative
}
