// Package cache holds the last-known balance snapshot per user and fans out
// updates to subscribers.
//
// The cache is strictly derived state. The persisted friend links and
// memberships are the source of truth; every entry starts Absent on process
// start and self-heals on first access.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// Listener receives a user's fresh snapshot after a balance change.
// Callbacks run on their own goroutines and must not be assumed to fire in
// any particular order relative to each other.
type Listener func(*models.BalanceSnapshot)

type entryState int

const (
	stateAbsent entryState = iota
	stateFresh
	stateStale
)

// entry is the per-user cache slot. Its mutex serializes recomputation for
// that user: a second request arriving while a recompute is in flight blocks
// on the mutex and then observes the fresh result instead of racing it.
// Entries for different users are fully independent.
type entry struct {
	mu       sync.Mutex
	state    entryState
	snapshot *models.BalanceSnapshot
}

// Manager is the balance cache and notification hub.
type Manager struct {
	store storage.Store

	mu        sync.Mutex
	entries   map[string]*entry
	listeners map[string]map[int]Listener
	nextID    int
}

// NewManager creates a Manager over the given store. All entries start
// Absent.
func NewManager(store storage.Store) *Manager {
	return &Manager{
		store:     store,
		entries:   make(map[string]*entry),
		listeners: make(map[string]map[int]Listener),
	}
}

func (m *Manager) entryFor(userID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = &entry{}
		m.entries[userID] = e
	}
	return e
}

// GetBalances returns the user's balance snapshot, recomputing it if the
// cached one is absent, stale, or a refresh is forced. A recompute failure
// leaves the entry stale (never serving the outdated snapshot as fresh) and
// propagates the error; other users' cached data is untouched.
func (m *Manager) GetBalances(ctx context.Context, userID string, force bool) (*models.BalanceSnapshot, error) {
	e := m.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateFresh && !force {
		return e.snapshot, nil
	}
	return m.recomputeLocked(ctx, userID, e)
}

// NotifyBalanceChange marks the user's entry stale and recomputes it before
// returning, so a mutation that calls this is guaranteed to be visible to
// any subsequent GetBalances. The fresh snapshot is then pushed to every
// subscriber asynchronously; the broadcast never blocks the mutation path.
func (m *Manager) NotifyBalanceChange(ctx context.Context, userID string) error {
	e := m.entryFor(userID)
	e.mu.Lock()
	e.state = stateStale
	snap, err := m.recomputeLocked(ctx, userID, e)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	m.mu.Lock()
	subs := make([]Listener, 0, len(m.listeners[userID]))
	for _, fn := range m.listeners[userID] {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		go fn(snap)
	}
	return nil
}

// AddListener registers a callback for a user's balance updates and returns
// an unsubscribe func. Multiple listeners per user are supported, one per
// observing surface.
func (m *Manager) AddListener(userID string, fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listeners[userID] == nil {
		m.listeners[userID] = make(map[int]Listener)
	}
	id := m.nextID
	m.nextID++
	m.listeners[userID][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[userID], id)
	}
}

// recomputeLocked rebuilds the snapshot from storage. Caller holds e.mu.
func (m *Manager) recomputeLocked(ctx context.Context, userID string, e *entry) (*models.BalanceSnapshot, error) {
	snap, err := m.buildSnapshot(ctx, userID)
	if err != nil {
		if e.snapshot != nil {
			e.state = stateStale
		} else {
			e.state = stateAbsent
		}
		slog.Error("balance recompute failed", "user_id", userID, "error", err)
		return nil, err
	}
	e.snapshot = snap
	e.state = stateFresh
	return snap, nil
}

var timeNow = time.Now // swapped in tests
