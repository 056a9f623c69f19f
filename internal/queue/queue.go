// Package queue is the durable FIFO of mutations made while the remote data
// service was unreachable. The whole list is persisted on every change and is
// replayed strictly in enqueue order.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/tally/internal/localstore"
	"github.com/marcus/tally/internal/models"
)

// StorageKey is where the queue lives in the local store.
const StorageKey = "finance_offline_queue"

// Action is the kind of remote call an operation replays as.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ErrInvalidOperation is returned by Enqueue for operations missing required fields.
var ErrInvalidOperation = errors.New("invalid queued operation")

// Operation is one pending mutation.
type Operation struct {
	ID        string       `json:"id"`
	Table     models.Table `json:"table"`
	Action    Action       `json:"action"`
	Payload   models.Row   `json:"payload,omitempty"`
	EntityID  string       `json:"entityId,omitempty"`
	TempID    string       `json:"tempId,omitempty"`
	// Owner is the user the operation was queued for. Only that user's
	// session replays it.
	Owner     string       `json:"owner,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Validate checks the fields each action requires.
func (op Operation) Validate() error {
	if !op.Table.Valid() {
		return fmt.Errorf("%w: unknown table %q", ErrInvalidOperation, op.Table)
	}
	switch op.Action {
	case ActionInsert:
		if op.TempID == "" {
			return fmt.Errorf("%w: insert without tempId", ErrInvalidOperation)
		}
		if op.Payload == nil {
			return fmt.Errorf("%w: insert without payload", ErrInvalidOperation)
		}
	case ActionUpdate:
		if op.EntityID == "" {
			return fmt.Errorf("%w: update without entityId", ErrInvalidOperation)
		}
		if op.Payload == nil {
			return fmt.Errorf("%w: update without payload", ErrInvalidOperation)
		}
	case ActionDelete:
		if op.EntityID == "" {
			return fmt.Errorf("%w: delete without entityId", ErrInvalidOperation)
		}
		if op.Payload != nil {
			return fmt.Errorf("%w: delete with payload", ErrInvalidOperation)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidOperation, op.Action)
	}
	return nil
}

// Target returns the entity id the operation is about: the temp id for
// inserts, the entity id otherwise.
func (op Operation) Target() string {
	if op.Action == ActionInsert {
		return op.TempID
	}
	return op.EntityID
}

// References reports whether op targets id or holds it as a payload value.
func (op Operation) References(id string) bool {
	if op.Target() == id {
		return true
	}
	for _, v := range op.Payload {
		if s, ok := v.(string); ok && s == id {
			return true
		}
	}
	return false
}

// Storage is the subset of the local store the queue needs.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Queue holds the ordered operations in memory and mirrors them to storage.
type Queue struct {
	mu          sync.Mutex
	ops         []Operation
	storage     Storage
	now         func() time.Time
	onFull      func()
	persistErrs int
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithStorageFullHook registers fn to run when persisting hits the storage
// quota. The triggering write is not retried.
func WithStorageFullHook(fn func()) Option {
	return func(q *Queue) { q.onFull = fn }
}

// Load restores the persisted queue. A missing or unreadable list starts empty.
func Load(storage Storage, opts ...Option) *Queue {
	q := &Queue{storage: storage, now: time.Now}
	for _, o := range opts {
		o(q)
	}

	data, ok, err := storage.Get(StorageKey)
	switch {
	case err != nil:
		slog.Warn("queue: load", "err", err)
	case ok:
		if err := json.Unmarshal(data, &q.ops); err != nil {
			slog.Warn("queue: decode persisted queue, starting empty", "err", err)
			q.ops = nil
		}
	}
	return q
}

// Enqueue assigns an id and timestamp to op, appends it and persists the queue.
func (q *Queue) Enqueue(op Operation) (Operation, error) {
	if err := op.Validate(); err != nil {
		return Operation{}, err
	}
	op.ID = uuid.NewString()
	op.CreatedAt = q.now().UTC()
	if op.Payload != nil {
		op.Payload = op.Payload.Clone()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if op.Action == ActionInsert {
		// An insert must replay before anything already queued against its temp id.
		if i := q.firstReferenceLocked(op.TempID); i >= 0 {
			q.ops = slices.Insert(q.ops, i, op)
			q.persistLocked()
			slog.Debug("queue: enqueued ahead of dependents", "op", op.ID, "table", op.Table, "target", op.TempID, "at", i)
			return op, nil
		}
	}
	q.ops = append(q.ops, op)
	q.persistLocked()
	slog.Debug("queue: enqueued", "op", op.ID, "table", op.Table, "action", op.Action, "target", op.Target())
	return op, nil
}

// Operations returns a snapshot of the queue in replay order.
func (q *Queue) Operations() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// PendingCount returns the number of queued operations.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// HasTarget reports whether a queued operation targets id or carries it in
// its payload.
func (q *Queue) HasTarget(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstReferenceLocked(id) >= 0
}

func (q *Queue) firstReferenceLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, op := range q.ops {
		if op.References(id) {
			return i
		}
	}
	return -1
}

// Discard removes the operation with the given id without replaying it.
func (q *Queue) Discard(id string) (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, op := range q.ops {
		if op.ID == id {
			q.ops = slices.Delete(q.ops, i, i+1)
			q.persistLocked()
			return op, true
		}
	}
	return Operation{}, false
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
	q.persistLocked()
}

// Resolve removes the applied operations and rewrites temporary ids in the
// ones left behind, so a later replay targets permanent ids. Operations
// enqueued after the replay snapshot are kept.
func (q *Queue) Resolve(applied []string, rewrites map[string]string) {
	if len(applied) == 0 && len(rewrites) == 0 {
		return
	}
	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.ops[:0:0]
	for _, op := range q.ops {
		if done[op.ID] {
			continue
		}
		kept = append(kept, Rewrite(op, rewrites))
	}
	q.ops = kept
	q.persistLocked()
}

// Rewrite substitutes permanent ids for temporary ones in op's target and in
// any string payload value (cross-entity references).
func Rewrite(op Operation, rewrites map[string]string) Operation {
	if len(rewrites) == 0 {
		return op
	}
	if id, ok := rewrites[op.EntityID]; ok {
		op.EntityID = id
	}
	if op.Payload != nil {
		var changed models.Row
		for k, v := range op.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if id, ok := rewrites[s]; ok {
				if changed == nil {
					changed = op.Payload.Clone()
				}
				changed[k] = id
			}
		}
		if changed != nil {
			op.Payload = changed
		}
	}
	return op
}

// persistLocked writes the full list. Callers hold q.mu.
func (q *Queue) persistLocked() {
	ops := q.ops
	if ops == nil {
		ops = []Operation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		slog.Error("queue: marshal", "err", err)
		return
	}
	if err := q.storage.Set(StorageKey, data); err != nil {
		q.persistErrs++
		if errors.Is(err, localstore.ErrQuotaExceeded) && q.onFull != nil {
			slog.Warn("queue: storage full, purging expired cache", "pending", len(q.ops))
			q.onFull()
			return
		}
		slog.Warn("queue: persist", "err", err)
	}
}

// PersistFailures counts writes that did not reach storage since Load.
func (q *Queue) PersistFailures() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persistErrs
}
