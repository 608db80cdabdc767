package domain

import "context"

// Store is the storage capability shared by every engine.
type Store interface {
	ProductRepository
	CartRepository
	OrderRepository
}

// Transactor runs fn as one all-or-nothing unit. The Store handed to fn must
// be used for every read and write that belongs to the unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
