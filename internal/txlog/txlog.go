// Package txlog keeps an audit trail of transaction lifecycle events.
package txlog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

// ErrNotFound is returned by Get for unknown entry ids.
var ErrNotFound = errors.New("txlog entry not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        string
	Label     string
	Signature chain.Signature
	FeePayer  chain.Address
	Status    chain.TxStatus
	// ErrorCode is the program error code, when the failure carried one.
	ErrorCode *uint32
	Error     string
	CreatedAt time.Time
}

// ListOptions filters List. Zero fields match everything.
type ListOptions struct {
	Label     string
	Signature chain.Signature
	Limit     int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

func (o ListOptions) match(e Entry) bool {
	if o.Label != "" && e.Label != o.Label {
		return false
	}
	if !o.Signature.IsZero() && e.Signature != o.Signature {
		return false
	}
	return true
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// List returns matching entries, newest first.
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
}

// Recorder turns manager events into entries.
type Recorder struct {
	store Store
	now   func() time.Time
}

var _ chain.TxRecorder = (*Recorder)(nil)

// NewRecorder records into store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

func (r *Recorder) RecordTx(ctx context.Context, ev chain.TxEvent) error {
	return r.store.Append(ctx, r.entry(ev))
}

func (r *Recorder) entry(ev chain.TxEvent) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Label:     ev.Label,
		Signature: ev.Signature,
		FeePayer:  ev.FeePayer,
		Status:    ev.Status,
		CreatedAt: r.now().UTC(),
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
		var pe *chain.ProgramError
		if errors.As(ev.Err, &pe) {
			code := pe.Code
			e.ErrorCode = &code
		}
	}
	return e
}

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[e.ID] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0)
	for i := len(m.entries) - 1; i >= 0 && len(out) < opts.limit(); i-- {
		if opts.match(m.entries[i]) {
			out = append(out, m.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return m.entries[i], nil
}
