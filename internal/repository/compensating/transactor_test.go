package compensating

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"shop_service/internal/domain"
	"shop_service/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*memory.Store
	failInsert bool
}

var errDown = errors.New("connection reset")

func (f *failingStore) InsertOrder(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if f.failInsert {
		return nil, errDown
	}
	return f.Store.InsertOrder(ctx, o)
}

// flakyJournal loses every write that marks a step as applied.
type flakyJournal struct {
	Journal
}

func (j *flakyJournal) Record(ctx context.Context, txID string, step Step) error {
	if step.Applied {
		return errDown
	}
	return j.Journal.Record(ctx, txID, step)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// siblingOf returns a journal sharing j's storage under a different owner, the
// way a second process sees the same Redis journal.
func siblingOf(j *MemoryJournal) *MemoryJournal {
	return &MemoryJournal{state: j.state, owner: uuid.NewString(), ttl: j.ttl, now: j.now}
}

type fixture struct {
	store      *memory.Store
	journal    *MemoryJournal
	clock      *clock
	transactor *Transactor
	log        *logrus.Logger
	productID  string
}

func setup(t *testing.T, failInsert bool) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memory.NewStore(logger)
	p, err := store.CreateProduct(context.Background(), &domain.Product{
		Name: "Lamp", Price: decimal.NewFromInt(25), Stock: 4, IsActive: true,
	})
	require.NoError(t, err)

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	journal := NewMemoryJournal(DefaultLeaseTTL)
	journal.now = clk.Now
	return &fixture{
		store:      store,
		journal:    journal,
		clock:      clk,
		transactor: NewTransactor(&failingStore{Store: store, failInsert: failInsert}, journal, logger),
		log:        logger,
		productID:  p.ID,
	}
}

// recoverer is a second process sharing the journal.
func (f *fixture) recoverer() *Transactor {
	return NewTransactor(f.store, siblingOf(f.journal), f.log)
}

// crashed opens a journal and hands back a store that journals into it, with
// nobody left to finish or compensate the unit of work.
func (f *fixture) crashed(t *testing.T, journal Journal) *journalStore {
	t.Helper()
	owner := NewTransactor(f.store, journal, f.log)
	txID, err := journal.Begin(context.Background())
	require.NoError(t, err)
	return &journalStore{Store: f.store, owner: owner, txID: txID}
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), f.productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) pending(t *testing.T) []string {
	t.Helper()
	f.clock.Advance(DefaultLeaseTTL + time.Second)
	ids, err := f.journal.Pending(context.Background())
	require.NoError(t, err)
	return ids
}

func placeOrder(ctx context.Context, s domain.Store, productID string) error {
	if _, err := s.AdjustStock(ctx, productID, -2); err != nil {
		return err
	}
	if _, err := s.InsertOrder(ctx, &domain.Order{UserID: "u1", Status: domain.StatusPending}); err != nil {
		return err
	}
	return s.SaveCart(ctx, &domain.Cart{UserID: "u1"})
}

func TestWithinTxCommitClosesJournal(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)

	err := f.transactor.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		return placeOrder(ctx, s, f.productID)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t))

	orders, err := f.store.ListOrdersByUserID(ctx, "u1", domain.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Empty(t, f.pending(t))
}

func TestWithinTxCompensatesOnFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)

	cart, err := f.store.GetCart(ctx, "u1")
	require.NoError(t, err)
	cart.AddItem(f.productID, 2)
	require.NoError(t, f.store.SaveCart(ctx, cart))

	err = f.transactor.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		return placeOrder(ctx, s, f.productID)
	})
	require.ErrorIs(t, err, errDown)
	assert.Equal(t, 4, f.stock(t))

	cart, err = f.store.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.QuantityOf(f.productID))
	assert.Empty(t, f.pending(t))
}

func TestWithinTxCompensatesAfterCancellation(t *testing.T) {
	f := setup(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	err := f.transactor.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		if _, err := s.AdjustStock(ctx, f.productID, -3); err != nil {
			return err
		}
		cancel()
		_, err := s.InsertOrder(ctx, &domain.Order{UserID: "u1", Status: domain.StatusPending})
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, f.stock(t))
}

func TestWithinTxFailsWhenConfirmationIsLost(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	tx := NewTransactor(f.store, &flakyJournal{Journal: f.journal}, f.log)

	err := tx.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		return placeOrder(ctx, s, f.productID)
	})
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 4, f.stock(t))

	orders, err := f.store.ListOrdersByUserID(ctx, "u1", domain.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.pending(t))
}

func TestReconcileRevertsAppliedButUnconfirmedStockStep(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)

	js := f.crashed(t, &flakyJournal{Journal: f.journal})
	_, err := js.AdjustStock(ctx, f.productID, -2)
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.Equal(t, 2, f.stock(t))

	steps := f.journal.state.txs[js.txID].steps
	require.Len(t, steps, 1)
	require.False(t, steps[1].Applied)

	require.Len(t, f.pending(t), 1)
	recoverer := f.recoverer()
	require.NoError(t, recoverer.Reconcile(ctx))
	assert.Equal(t, 4, f.stock(t))
	assert.Empty(t, f.pending(t))

	require.NoError(t, recoverer.Reconcile(ctx))
	assert.Equal(t, 4, f.stock(t))
}

func TestReconcileSkipsStockStepThatNeverApplied(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)

	js := f.crashed(t, f.journal)
	_, err := js.AdjustStock(ctx, f.productID, -5)
	require.ErrorIs(t, err, domain.ErrStockWouldGoNegative)

	f.clock.Advance(DefaultLeaseTTL + time.Second)
	require.NoError(t, f.recoverer().Reconcile(ctx))
	assert.Equal(t, 4, f.stock(t))
}

func TestReconcileCompensatesUntaggedJournal(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)

	// Steps journaled without tags: only confirmed stock steps are undone.
	txID, err := f.journal.Begin(ctx)
	require.NoError(t, err)
	_, err = f.store.AdjustStock(ctx, f.productID, -1)
	require.NoError(t, err)
	require.NoError(t, f.journal.Record(ctx, txID, Step{Seq: 1, Kind: StepStock, Applied: true, ProductID: f.productID, Delta: -1}))
	order, err := f.store.InsertOrder(ctx, &domain.Order{UserID: "u1", Status: domain.StatusPending})
	require.NoError(t, err)
	require.NoError(t, f.journal.Record(ctx, txID, Step{Seq: 2, Kind: StepOrder, OrderID: order.ID}))
	require.NoError(t, f.journal.Record(ctx, txID, Step{Seq: 3, Kind: StepStock, ProductID: f.productID, Delta: -1}))

	f.clock.Advance(DefaultLeaseTTL + time.Second)
	require.NoError(t, f.recoverer().Reconcile(ctx))
	assert.Equal(t, 4, f.stock(t))

	_, err = f.store.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Empty(t, f.pending(t))
}

func TestReconcileRestoresCartAcrossSteps(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	original := []domain.CartItem{{ProductID: f.productID, Quantity: 1}}
	require.NoError(t, f.store.SaveCart(ctx, &domain.Cart{UserID: "u1", Items: original}))

	js := f.crashed(t, f.journal)
	require.NoError(t, js.SaveCart(ctx, &domain.Cart{UserID: "u1", Items: []domain.CartItem{{ProductID: f.productID, Quantity: 3}}}))
	require.NoError(t, js.SaveCart(ctx, &domain.Cart{UserID: "u1"}))

	f.clock.Advance(DefaultLeaseTTL + time.Second)
	require.NoError(t, f.recoverer().Reconcile(ctx))

	cart, err := f.store.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, domain.SameItems(original, cart.Items))
}

func TestReconcileKeepsCartEditedAfterCrash(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	require.NoError(t, f.store.SaveCart(ctx, &domain.Cart{UserID: "u1", Items: []domain.CartItem{{ProductID: f.productID, Quantity: 2}}}))

	js := f.crashed(t, f.journal)
	_, err := js.AdjustStock(ctx, f.productID, -2)
	require.NoError(t, err)
	require.NoError(t, js.SaveCart(ctx, &domain.Cart{UserID: "u1"}))

	// The customer keeps shopping before anyone reconciles.
	edited := []domain.CartItem{{ProductID: "other", Quantity: 1}}
	require.NoError(t, f.store.SaveCart(ctx, &domain.Cart{UserID: "u1", Items: edited}))

	f.clock.Advance(DefaultLeaseTTL + time.Second)
	require.NoError(t, f.recoverer().Reconcile(ctx))
	assert.Equal(t, 4, f.stock(t))

	cart, err := f.store.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, domain.SameItems(edited, cart.Items))
}

func TestReconcileLeavesLiveTransactionAlone(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.transactor.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
			if _, err := s.AdjustStock(ctx, f.productID, -4); err != nil {
				return err
			}
			close(entered)
			<-release
			_, err := s.InsertOrder(ctx, &domain.Order{UserID: "u1", Status: domain.StatusPending})
			return err
		})
	}()

	<-entered
	require.NoError(t, f.recoverer().Reconcile(ctx))
	assert.Equal(t, 0, f.stock(t))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, f.stock(t))

	orders, err := f.store.ListOrdersByUserID(ctx, "u1", domain.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Empty(t, f.pending(t))
}

func TestReconcileTakesOverExpiredTransactionOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.transactor.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
			if _, err := s.AdjustStock(ctx, f.productID, -4); err != nil {
				return err
			}
			close(entered)
			<-release
			_, err := s.InsertOrder(ctx, &domain.Order{UserID: "u1", Status: domain.StatusPending})
			return err
		})
	}()

	<-entered
	f.clock.Advance(DefaultLeaseTTL + time.Second)
	require.NoError(t, f.recoverer().Reconcile(ctx))
	assert.Equal(t, 4, f.stock(t))

	close(release)
	err := <-done
	require.ErrorIs(t, err, ErrLeaseLost)
	assert.Equal(t, 4, f.stock(t))

	orders, err := f.store.ListOrdersByUserID(ctx, "u1", domain.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestLostLeaseCancelsRunningTransaction(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	tx := NewTransactor(f.store, f.journal, f.log, WithLeaseRenewal(5*time.Millisecond))

	entered := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- tx.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
			if _, err := s.AdjustStock(ctx, f.productID, -1); err != nil {
				return err
			}
			entered <- ctx.Value(txKey{}).(*journalStore).txID
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	txID := <-entered
	f.journal.state.mu.Lock()
	f.journal.state.txs[txID].owner = "another-process"
	f.journal.state.mu.Unlock()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrLeaseLost)
		require.ErrorIs(t, err, domain.ErrPersistence)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction kept running after losing its lease")
	}
	assert.Equal(t, 4, f.stock(t))
}

func TestNestedWithinTxSharesJournal(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)

	err := f.transactor.WithinTx(ctx, func(ctx context.Context, s domain.Store) error {
		if _, err := s.AdjustStock(ctx, f.productID, -1); err != nil {
			return err
		}
		return f.transactor.WithinTx(ctx, func(ctx context.Context, inner domain.Store) error {
			_, err := inner.InsertOrder(ctx, &domain.Order{UserID: "u1"})
			return err
		})
	})
	require.ErrorIs(t, err, errDown)
	assert.Equal(t, 4, f.stock(t))
}

func TestMemoryJournalLeases(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	other := siblingOf(f.journal)

	txID, err := f.journal.Begin(ctx)
	require.NoError(t, err)

	_, claimed, err := other.Claim(ctx, txID)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.ErrorIs(t, other.Complete(ctx, txID), ErrLeaseLost)

	f.clock.Advance(DefaultLeaseTTL + time.Second)
	ids, err := other.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{txID}, ids)

	_, claimed, err = other.Claim(ctx, txID)
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.ErrorIs(t, f.journal.Renew(ctx, txID), ErrLeaseLost)
	assert.ErrorIs(t, f.journal.Record(ctx, txID, Step{Seq: 1}), ErrLeaseLost)
	require.NoError(t, other.Complete(ctx, txID))
	assert.ErrorIs(t, other.Renew(ctx, txID), ErrLeaseLost)
}
