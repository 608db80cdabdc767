package compensating

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"shop_service/internal/domain"

	"github.com/google/uuid"
)

type StepKind string

const (
	StepStock  StepKind = "stock"
	StepOrder  StepKind = "order"
	StepCart   StepKind = "cart"
	StepStatus StepKind = "status"
)

// DefaultLeaseTTL is how long a journal stays owned by its process without a renewal.
const DefaultLeaseTTL = 30 * time.Second

// ErrLeaseLost is returned when another process has taken over a journal,
// or it was already closed.
var ErrLeaseLost = errors.New("journal lease lost")

// Step is one journaled effect together with what is needed to undo it.
// A step is recorded before it is applied and recorded again with Applied set
// once the store confirms it.
type Step struct {
	Seq     int      `json:"seq"`
	Kind    StepKind `json:"kind"`
	Applied bool     `json:"applied"`
	// Tag marks a stock adjustment on the product itself, so recovery can tell
	// whether it happened even when Applied was never recorded.
	Tag       string             `json:"tag,omitempty"`
	ProductID string             `json:"product_id,omitempty"`
	Delta     int                `json:"delta,omitempty"`
	OrderID   string             `json:"order_id,omitempty"`
	From      domain.OrderStatus `json:"from,omitempty"`
	To        domain.OrderStatus `json:"to,omitempty"`
	UserID    string             `json:"user_id,omitempty"`
	PrevItems []domain.CartItem  `json:"prev_items,omitempty"`
	NextItems []domain.CartItem  `json:"next_items,omitempty"`
}

// Journal persists the steps of unfinished units of work. Each journal is
// leased to the process that opened it; only journals whose lease expired are
// offered to Reconcile. Recording a step with an existing Seq replaces it.
type Journal interface {
	Begin(ctx context.Context) (string, error)
	// Record stores step and extends the lease.
	Record(ctx context.Context, txID string, step Step) error
	Renew(ctx context.Context, txID string) error
	Complete(ctx context.Context, txID string) error
	// Pending lists journals whose owner stopped renewing them.
	Pending(ctx context.Context) ([]string, error)
	// Claim takes over an expired journal and returns its steps. It reports
	// false when the journal is still leased or already closed.
	Claim(ctx context.Context, txID string) ([]Step, bool, error)
}

var _ Journal = (*MemoryJournal)(nil)

type memoryEntry struct {
	owner      string
	leaseUntil time.Time
	steps      map[int]Step
}

type memoryJournalState struct {
	mu  sync.Mutex
	txs map[string]*memoryEntry
}

// MemoryJournal does not survive a restart. It is used when no Redis is configured.
type MemoryJournal struct {
	state *memoryJournalState
	owner string
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryJournal(ttl time.Duration) *MemoryJournal {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &MemoryJournal{
		state: &memoryJournalState{txs: make(map[string]*memoryEntry)},
		owner: uuid.NewString(),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (j *MemoryJournal) Begin(_ context.Context) (string, error) {
	j.state.mu.Lock()
	defer j.state.mu.Unlock()
	id := uuid.NewString()
	j.state.txs[id] = &memoryEntry{owner: j.owner, leaseUntil: j.now().Add(j.ttl), steps: make(map[int]Step)}
	return id, nil
}

// held returns the entry if this journal still owns it. Callers hold state.mu.
func (j *MemoryJournal) held(txID string) (*memoryEntry, error) {
	entry, ok := j.state.txs[txID]
	if !ok || entry.owner != j.owner {
		return nil, ErrLeaseLost
	}
	return entry, nil
}

func (j *MemoryJournal) Record(_ context.Context, txID string, step Step) error {
	j.state.mu.Lock()
	defer j.state.mu.Unlock()
	entry, err := j.held(txID)
	if err != nil {
		return err
	}
	entry.steps[step.Seq] = step
	entry.leaseUntil = j.now().Add(j.ttl)
	return nil
}

func (j *MemoryJournal) Renew(_ context.Context, txID string) error {
	j.state.mu.Lock()
	defer j.state.mu.Unlock()
	entry, err := j.held(txID)
	if err != nil {
		return err
	}
	entry.leaseUntil = j.now().Add(j.ttl)
	return nil
}

func (j *MemoryJournal) Complete(_ context.Context, txID string) error {
	j.state.mu.Lock()
	defer j.state.mu.Unlock()
	if _, err := j.held(txID); err != nil {
		return err
	}
	delete(j.state.txs, txID)
	return nil
}

func (j *MemoryJournal) Pending(_ context.Context) ([]string, error) {
	j.state.mu.Lock()
	defer j.state.mu.Unlock()
	now := j.now()
	out := make([]string, 0)
	for id, entry := range j.state.txs {
		if now.After(entry.leaseUntil) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (j *MemoryJournal) Claim(_ context.Context, txID string) ([]Step, bool, error) {
	j.state.mu.Lock()
	defer j.state.mu.Unlock()
	entry, ok := j.state.txs[txID]
	now := j.now()
	if !ok || !now.After(entry.leaseUntil) {
		return nil, false, nil
	}
	entry.owner = j.owner
	entry.leaseUntil = now.Add(j.ttl)
	return SortSteps(entry.steps), true, nil
}

// SortSteps orders steps by sequence number.
func SortSteps(steps map[int]Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
