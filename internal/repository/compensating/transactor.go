package compensating

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"shop_service/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var _ domain.Transactor = (*Transactor)(nil)

// TaggedStock is implemented by stores that can mark a stock adjustment with
// the journal step that made it, in the same atomic write. Recovery then
// undoes exactly the adjustments that happened, whether or not they were
// confirmed in the journal.
type TaggedStock interface {
	AdjustStockTagged(ctx context.Context, id string, delta int, tag string) (*domain.Product, error)
	// RevertStockTag undoes the adjustment carrying tag and reports false if
	// there is none, so calling it twice has no further effect.
	RevertStockTag(ctx context.Context, id, tag string, delta int) (bool, error)
	ReleaseStockTag(ctx context.Context, id, tag string) error
}

// Transactor gives all-or-nothing behaviour to stores without multi-document
// transactions. Every effect is journaled before it is applied and undone in
// reverse order when the unit of work fails.
type Transactor struct {
	store      domain.Store
	tags       TaggedStock
	journal    Journal
	newID      func() string
	renewEvery time.Duration
	log        *logrus.Logger
}

type Option func(*Transactor)

// WithIDGenerator sets how order ids are chosen ahead of insertion.
func WithIDGenerator(fn func() string) Option {
	return func(t *Transactor) { t.newID = fn }
}

// WithLeaseRenewal sets how often a running unit of work renews its journal
// lease. It must be well below the journal's lease TTL.
func WithLeaseRenewal(every time.Duration) Option {
	return func(t *Transactor) {
		if every > 0 {
			t.renewEvery = every
		}
	}
}

func NewTransactor(store domain.Store, journal Journal, logger *logrus.Logger, opts ...Option) *Transactor {
	t := &Transactor{
		store:      store,
		journal:    journal,
		newID:      uuid.NewString,
		renewEvery: DefaultLeaseTTL / 3,
		log:        logger,
	}
	if tagged, ok := store.(TaggedStock); ok {
		t.tags = tagged
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type txKey struct{}

func stockTag(txID string, seq int) string {
	return txID + ":" + strconv.Itoa(seq)
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s domain.Store) error) error {
	if js, ok := ctx.Value(txKey{}).(*journalStore); ok && js.owner == t {
		return fn(ctx, js)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txID, err := t.journal.Begin(ctx)
	if err != nil {
		return domain.NewPersistenceError("begin journal", err)
	}

	js := &journalStore{Store: t.store, owner: t, txID: txID}
	txCtx, cancel := context.WithCancelCause(context.WithValue(ctx, txKey{}, js))
	defer cancel(nil)

	stop := t.keepAlive(txCtx, txID, cancel)
	err = t.run(txCtx, js, fn)
	stop()

	if err != nil {
		if cause := context.Cause(txCtx); errors.Is(cause, ErrLeaseLost) {
			err = domain.NewPersistenceError("run unit of work", cause)
		}
		t.log.Warnf("Repository: Compensating %d steps of journal %s due to error: %v", len(js.applied()), txID, err)
		t.rollback(context.WithoutCancel(ctx), txID, js.applied())
		return err
	}

	if err := t.journal.Complete(context.WithoutCancel(ctx), txID); err != nil {
		t.log.Errorf("Repository: Failed to complete journal %s: %v. Compensating.", txID, err)
		t.rollback(context.WithoutCancel(ctx), txID, js.applied())
		return domain.NewPersistenceError("complete journal", err)
	}
	t.release(context.WithoutCancel(ctx), js.applied())
	return nil
}

func (t *Transactor) run(ctx context.Context, js *journalStore, fn func(ctx context.Context, s domain.Store) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			t.log.Errorf("Repository: Recovered from panic in journal %s, compensating", js.txID)
			t.rollback(context.WithoutCancel(ctx), js.txID, js.applied())
			panic(p)
		}
	}()
	return fn(ctx, js)
}

// keepAlive renews the journal lease until the returned stop func is called.
// Losing the lease cancels ctx so the unit of work stops writing.
func (t *Transactor) keepAlive(ctx context.Context, txID string, cancel context.CancelCauseFunc) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(t.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := t.journal.Renew(ctx, txID)
				if errors.Is(err, ErrLeaseLost) {
					t.log.Errorf("Repository: Journal %s was taken over by another process, aborting", txID)
					cancel(fmt.Errorf("journal %s: %w", txID, err))
					return
				}
				if err != nil {
					t.log.Warnf("Repository: Could not renew lease of journal %s: %v", txID, err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (t *Transactor) rollback(ctx context.Context, txID string, steps []Step) {
	if err := t.compensate(ctx, steps); err != nil {
		t.log.Errorf("Repository: CRITICAL! Journal %s left pending, compensation failed: %v", txID, err)
		return
	}
	if err := t.journal.Complete(ctx, txID); err != nil {
		t.log.Errorf("Repository: Journal %s compensated but could not be closed: %v", txID, err)
	}
}

// release drops the stock tags of a committed unit of work. A tag left behind
// only costs space, the journal that could revert it is gone.
func (t *Transactor) release(ctx context.Context, steps []Step) {
	if t.tags == nil {
		return
	}
	for _, step := range steps {
		if step.Kind != StepStock || step.Tag == "" {
			continue
		}
		if err := t.tags.ReleaseStockTag(ctx, step.ProductID, step.Tag); err != nil {
			t.log.Warnf("Repository: Could not release stock tag %s of product %s: %v", step.Tag, step.ProductID, err)
		}
	}
}

// Reconcile compensates units of work whose owning process stopped renewing
// their lease. Journals of live units are left alone.
func (t *Transactor) Reconcile(ctx context.Context) error {
	pending, err := t.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("could not read pending journals: %w", err)
	}
	if len(pending) == 0 {
		t.log.Debug("Repository: No pending journals to reconcile")
		return nil
	}

	var errs []error
	for _, txID := range pending {
		steps, claimed, err := t.journal.Claim(ctx, txID)
		if err != nil {
			errs = append(errs, fmt.Errorf("journal %s: %w", txID, err))
			continue
		}
		if !claimed {
			continue
		}
		t.log.Warnf("Repository: Reconciling journal %s with %d steps", txID, len(steps))
		if err := t.compensate(ctx, steps); err != nil {
			errs = append(errs, fmt.Errorf("journal %s: %w", txID, err))
			continue
		}
		if err := t.journal.Complete(ctx, txID); err != nil {
			errs = append(errs, fmt.Errorf("journal %s: %w", txID, err))
		}
	}
	return errors.Join(errs...)
}

// compensate undoes steps in reverse order. Each undo is safe to repeat, so a
// journal compensated both by its owner and by a reconciler ends up undone once.
func (t *Transactor) compensate(ctx context.Context, steps []Step) error {
	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		var err error
		switch step.Kind {
		case StepStock:
			err = t.undoStock(ctx, step)
		case StepOrder:
			err = t.store.DeleteOrder(ctx, step.OrderID)
			if errors.Is(err, domain.ErrOrderNotFound) {
				err = nil
			}
		case StepCart:
			err = t.undoCart(ctx, step)
		case StepStatus:
			_, err = t.store.UpdateOrderStatus(ctx, step.OrderID, step.To, step.From)
			if errors.Is(err, domain.ErrInvalidStatusTransition) || errors.Is(err, domain.ErrOrderNotFound) {
				err = nil
			}
		default:
			err = fmt.Errorf("unknown step kind %q", step.Kind)
		}
		if err != nil {
			t.log.Errorf("Repository: CRITICAL! Failed to compensate %s step %d: %v", step.Kind, step.Seq, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Transactor) undoStock(ctx context.Context, step Step) error {
	if step.Tag != "" && t.tags != nil {
		reverted, err := t.tags.RevertStockTag(ctx, step.ProductID, step.Tag, step.Delta)
		if err == nil && !reverted {
			t.log.Debugf("Repository: Stock step %s of product %s has nothing to undo", step.Tag, step.ProductID)
		}
		return err
	}
	if !step.Applied {
		t.log.Warnf("Repository: Stock step for product %s (delta %d) was never confirmed, skipping", step.ProductID, step.Delta)
		return nil
	}
	_, err := t.store.AdjustStock(ctx, step.ProductID, -step.Delta)
	return err
}

// undoCart restores the previous cart only while the cart still holds what
// the step wrote, so edits made after the unit of work survive.
func (t *Transactor) undoCart(ctx context.Context, step Step) error {
	current, err := t.store.GetCart(ctx, step.UserID)
	if err != nil {
		return err
	}
	if !domain.SameItems(current.Items, step.NextItems) {
		t.log.Warnf("Repository: Cart of user %s changed after step %d, leaving it as is", step.UserID, step.Seq)
		return nil
	}
	return t.store.SaveCart(ctx, &domain.Cart{UserID: step.UserID, Items: step.PrevItems})
}

// journalStore records each mutation in the journal around the call to the
// underlying store. Reads pass straight through.
type journalStore struct {
	domain.Store
	owner *Transactor
	txID  string

	mu    sync.Mutex
	seq   int
	steps []Step
}

func (s *journalStore) begin(ctx context.Context, step Step) (Step, error) {
	s.mu.Lock()
	s.seq++
	step.Seq = s.seq
	s.mu.Unlock()

	if step.Kind == StepStock && s.owner.tags != nil {
		step.Tag = stockTag(s.txID, step.Seq)
	}
	if err := s.owner.journal.Record(ctx, s.txID, step); err != nil {
		return step, domain.NewPersistenceError("record journal step", err)
	}
	return step, nil
}

// confirm marks step as applied. The step joins the in-process undo list even
// when the journal write fails, and the failure aborts the unit of work.
func (s *journalStore) confirm(ctx context.Context, step Step) error {
	step.Applied = true
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()

	if err := s.owner.journal.Record(context.WithoutCancel(ctx), s.txID, step); err != nil {
		s.owner.log.Errorf("Repository: Could not confirm journal step %d of %s: %v", step.Seq, s.txID, err)
		return domain.NewPersistenceError("confirm journal step", err)
	}
	return nil
}

func (s *journalStore) applied() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Step(nil), s.steps...)
}

func (s *journalStore) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	step, err := s.begin(ctx, Step{Kind: StepStock, ProductID: id, Delta: delta})
	if err != nil {
		return nil, err
	}
	var p *domain.Product
	if step.Tag != "" {
		p, err = s.owner.tags.AdjustStockTagged(ctx, id, delta, step.Tag)
	} else {
		p, err = s.Store.AdjustStock(ctx, id, delta)
	}
	if err != nil {
		return nil, err
	}
	if err := s.confirm(ctx, step); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *journalStore) InsertOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		withID := *order
		withID.ID = s.owner.newID()
		order = &withID
	}
	step, err := s.begin(ctx, Step{Kind: StepOrder, OrderID: order.ID, UserID: order.UserID})
	if err != nil {
		return nil, err
	}
	created, err := s.Store.InsertOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.confirm(ctx, step); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *journalStore) SaveCart(ctx context.Context, cart *domain.Cart) error {
	prev, err := s.Store.GetCart(ctx, cart.UserID)
	if err != nil {
		return err
	}
	step, err := s.begin(ctx, Step{Kind: StepCart, UserID: cart.UserID, PrevItems: prev.Items, NextItems: cart.Items})
	if err != nil {
		return err
	}
	if err := s.Store.SaveCart(ctx, cart); err != nil {
		return err
	}
	return s.confirm(ctx, step)
}

func (s *journalStore) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	step, err := s.begin(ctx, Step{Kind: StepStatus, OrderID: id, From: from, To: to})
	if err != nil {
		return nil, err
	}
	o, err := s.Store.UpdateOrderStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.confirm(ctx, step); err != nil {
		return nil, err
	}
	return o, nil
}
