package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shop_service/internal/domain"

	"github.com/sirupsen/logrus"
)

var (
	_ domain.Store              = (*Store)(nil)
	_ domain.Transactor         = (*Store)(nil)
	_ domain.UserRepository     = (*Store)(nil)
	_ domain.CategoryRepository = (*Store)(nil)
)

// Store keeps the catalog, carts, orders and users in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	categories map[string]domain.Category
	carts      map[string]domain.Cart
	orders     map[string]domain.Order
	users      map[string]domain.User
	// stockTags holds, per product, the journal tags of stock adjustments not yet released.
	stockTags map[string]map[string]struct{}
	now       func() time.Time
	log       *logrus.Logger
}

func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.Category),
		carts:      make(map[string]domain.Cart),
		orders:     make(map[string]domain.Order),
		users:      make(map[string]domain.User),
		stockTags:  make(map[string]map[string]struct{}),
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger,
	}
}

type txKey struct{}

// memTx is the undo log of one WithinTx call.
type memTx struct {
	store *Store
	undo  []func()
}

func (s *Store) txFrom(ctx context.Context) *memTx {
	tx, ok := ctx.Value(txKey{}).(*memTx)
	if !ok || tx.store != s {
		return nil
	}
	return tx
}

func (s *Store) rlock(ctx context.Context) func() {
	if s.txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) wlock(ctx context.Context) func() {
	if s.txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// onRollback registers fn to run if the surrounding transaction fails.
// Outside a transaction it does nothing.
func (s *Store) onRollback(ctx context.Context, fn func()) {
	if tx := s.txFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

// WithinTx holds the write lock for the whole of fn. If fn fails or panics
// every mutation it made is undone in reverse order.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st domain.Store) error) (err error) {
	if tx := s.txFrom(ctx); tx != nil {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Repository: Recovered from panic, rolling back memory transaction")
			tx.rollback()
			panic(p)
		}
		if err != nil {
			s.log.Warnf("Repository: Rolling back memory transaction (%d steps) due to error: %v", len(tx.undo), err)
			tx.rollback()
		}
	}()

	return fn(txCtx, s)
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
