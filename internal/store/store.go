// Package store holds the in-memory transactions, reminders and investments,
// applies mutations optimistically and reconciles them with the remote data
// service, queueing whatever cannot be sent right away.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/tally/internal/cache"
	"github.com/marcus/tally/internal/identity"
	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/queue"
	"github.com/marcus/tally/internal/remote"
)

// State is the store lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSyncing:
		return "syncing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrNoOwner is returned by every mutator while nobody is signed in.
	ErrNoOwner = errors.New("no signed-in owner")
	// ErrEntityNotFound is returned when a mutation names an id the store does not hold.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrAlreadyInvested is returned by MarkInvestmentDone for realized investments.
	ErrAlreadyInvested = errors.New("investment already realized")
	// ErrAwaitingInsert stops a drain at an operation whose entity is still
	// being created by a direct insert.
	ErrAwaitingInsert = errors.New("waiting for insert to complete")
)

// Connectivity is the monitor the store reads and follows.
type Connectivity interface {
	Online() bool
	Subscribe() (<-chan bool, func())
}

// Notifier receives short user-facing messages.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

const (
	msgSavedOffline = "Saved offline, will sync when back online"
)

// Store is the single writer of the collections, the queue and the cache.
type Store struct {
	remote   remote.Service
	conn     Connectivity
	identity identity.Provider
	cache    *cache.Cache
	queue    *queue.Queue
	notifier Notifier
	now      func() time.Time

	mu           sync.Mutex
	state        State
	syncing      bool
	inflight     map[string]int
	resolved     map[string]string
	realizing    map[string]bool
	transactions *collection[models.Transaction]
	reminders    *collection[models.Reminder]
	investments  *collection[models.Investment]

	kick chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets where user-facing messages go. The default drops them.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wires a store. Nothing is loaded until Load is called.
func New(svc remote.Service, conn Connectivity, id identity.Provider, c *cache.Cache, q *queue.Queue, opts ...Option) *Store {
	s := &Store{
		remote:   svc,
		conn:     conn,
		identity: id,
		cache:    c,
		queue:    q,
		notifier: NotifierFunc(func(string) {}),
		now:      time.Now,
		inflight:  make(map[string]int),
		resolved:  make(map[string]string),
		realizing: make(map[string]bool),
		kick:     make(chan struct{}, 1),
		transactions: &collection[models.Transaction]{
			table: models.TableTransactions,
			compare: func(a, b models.Transaction) int {
				if c := b.Date.Compare(a.Date); c != 0 {
					return c
				}
				return b.CreatedAt.Compare(a.CreatedAt)
			},
		},
		reminders: &collection[models.Reminder]{
			table:   models.TableReminders,
			compare: func(a, b models.Reminder) int { return a.DueDate.Compare(b.DueDate) },
		},
		investments: &collection[models.Investment]{
			table:   models.TableInvestments,
			compare: func(a, b models.Investment) int { return b.CreatedAt.Compare(a.CreatedAt) },
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) collection(table models.Table) (collectionOps, error) {
	switch table {
	case models.TableTransactions:
		return s.transactions, nil
	case models.TableReminders:
		return s.reminders, nil
	case models.TableInvestments:
		return s.investments, nil
	}
	return nil, fmt.Errorf("unknown table %q", table)
}

// Transactions returns a copy of the transactions, newest first.
func (s *Store) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.snapshot()
}

// Reminders returns a copy of the reminders, by due date.
func (s *Store) Reminders() []models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminders.snapshot()
}

// Investments returns a copy of the investments, newest first.
func (s *Store) Investments() []models.Investment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.investments.snapshot()
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether the initial load is in flight.
func (s *Store) Loading() bool {
	return s.State() == StateLoading
}

// Syncing reports whether a queue drain is running.
func (s *Store) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// PendingCount is the number of operations queued by the current owner.
func (s *Store) PendingCount() int {
	return len(s.ownOperations())
}

// Operations returns the current owner's queued operations in replay order.
func (s *Store) Operations() []queue.Operation {
	return s.ownOperations()
}

// ownOperations filters the shared queue down to the signed-in owner. Work
// queued by anyone else stays on disk untouched until they sign in again.
func (s *Store) ownOperations() []queue.Operation {
	owner, ok := s.identity.OwnerID()
	if !ok {
		return nil
	}
	ops := s.queue.Operations()
	out := ops[:0]
	for _, op := range ops {
		if op.Owner == owner {
			out = append(out, op)
		}
	}
	return out
}

// PendingIDs returns the ids awaiting remote confirmation: targets of queued
// operations and of remote calls in flight.
func (s *Store) PendingIDs() map[string]bool {
	out := make(map[string]bool)
	for _, op := range s.ownOperations() {
		out[op.Target()] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.inflight {
		out[id] = true
	}
	return out
}

// CacheAge reports how old the cached snapshot of table is.
func (s *Store) CacheAge(table models.Table) (time.Duration, bool) {
	return s.cache.Age(string(table))
}

// DiscardOperation drops a queued operation without replaying it. The
// optimistic local effect stays until the next refetch.
func (s *Store) DiscardOperation(opID string) (queue.Operation, bool) {
	owned := false
	for _, op := range s.ownOperations() {
		if op.ID == opID {
			owned = true
			break
		}
	}
	if !owned {
		return queue.Operation{}, false
	}
	op, ok := s.queue.Discard(opID)
	if ok {
		slog.Info("store: discarded queued operation", "op", op.ID, "table", op.Table, "action", op.Action, "target", op.Target())
	}
	return op, ok
}

// Load fills the collections: from the remote service when online, falling
// back per collection to the cache; from the cache when offline. Pending
// operations are drained afterwards when online. Without an owner the store
// stays Idle.
func (s *Store) Load(ctx context.Context) error {
	owner, ok := s.identity.OwnerID()
	if !ok {
		return ErrNoOwner
	}

	s.mu.Lock()
	s.state = StateLoading
	s.mu.Unlock()

	online := s.conn.Online()
	fetched := s.fetch(ctx, owner, online)

	s.mu.Lock()
	for _, table := range models.AllTables {
		col, _ := s.collection(table)
		if rows, ok := fetched[table]; ok {
			if err := col.replace(rows); err != nil {
				slog.Warn("store: decode remote rows", "table", table, "err", err)
			} else {
				col.writeCache(s.cache)
				continue
			}
		}
		if !col.readCache(s.cache, owner) {
			_ = col.replace(nil)
		}
	}
	s.overlayPendingLocked()
	s.state = StateReady
	s.mu.Unlock()

	slog.Debug("store: loaded", "online", online, "remote_tables", len(fetched))

	if online && s.PendingCount() > 0 {
		if _, err := s.SyncQueue(ctx); err != nil {
			slog.Debug("store: drain after load stopped", "err", err)
		}
	}
	return nil
}

// fetch selects every table from the remote service. Tables that failed are
// missing from the result.
func (s *Store) fetch(ctx context.Context, owner string, online bool) map[models.Table][]models.Row {
	out := make(map[models.Table][]models.Row, len(models.AllTables))
	if !online {
		return out
	}
	for _, table := range models.AllTables {
		rows, err := s.remote.Select(ctx, table, owner)
		if err != nil {
			slog.Warn("store: remote select failed, using cache", "table", table, "err", err)
			continue
		}
		out[table] = rows
	}
	return out
}

// overlayPendingLocked re-applies queued operations on top of freshly
// fetched rows so optimistic effects not yet replayed stay visible.
func (s *Store) overlayPendingLocked() {
	for _, op := range s.ownOperations() {
		col, err := s.collection(op.Table)
		if err != nil {
			continue
		}
		switch op.Action {
		case queue.ActionInsert:
			if col.contains(op.TempID) {
				continue
			}
			r := op.Payload.Clone()
			r["id"] = op.TempID
			if err := col.prepend(r); err != nil {
				slog.Debug("store: overlay insert", "op", op.ID, "err", err)
			}
		case queue.ActionUpdate:
			if _, err := col.merge(op.EntityID, op.Payload); err != nil {
				slog.Debug("store: overlay update", "op", op.ID, "err", err)
			}
		case queue.ActionDelete:
			col.remove(op.EntityID)
		}
	}
}

// Watch drains the queue whenever connectivity comes back, and whenever a
// mutation made while online had to be queued. It returns when ctx is done.
func (s *Store) Watch(ctx context.Context) {
	ch, cancel := s.conn.Subscribe()
	defer cancel()
	if s.conn.Online() {
		s.drainIfReady(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			s.HandleConnectivity(ctx, online)
		case <-s.kick:
			if s.conn.Online() {
				s.drainIfReady(ctx)
			}
		}
	}
}

// HandleConnectivity reacts to a connectivity transition: coming online
// with pending operations starts a drain unless one is running.
func (s *Store) HandleConnectivity(ctx context.Context, online bool) {
	if !online {
		return
	}
	s.drainIfReady(ctx)
}

func (s *Store) drainIfReady(ctx context.Context) {
	if s.State() != StateReady || s.PendingCount() == 0 {
		return
	}
	if _, err := s.SyncQueue(ctx); err != nil {
		slog.Debug("store: automatic drain stopped", "err", err)
	}
}

func (s *Store) signalDrain() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Store) notify(msg string) {
	s.notifier.Notify(msg)
}
