package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/tally/internal/models"
)

// Method names a Service call, for recording and failure injection.
type Method string

const (
	MethodSelect Method = "select"
	MethodInsert Method = "insert"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
)

// Call records one request received by a Memory service.
type Call struct {
	Method Method
	Table  models.Table
	ID     string
	Row    models.Row
}

type injected struct {
	method Method
	err    error
}

// Memory is an in-process Service. Rows are kept per table in insertion
// order; failures can be injected per call or for the whole service.
type Memory struct {
	mu       sync.Mutex
	rows     map[models.Table][]models.Row
	calls    []Call
	down     bool
	failures []injected
	hook     func(ctx context.Context, c Call) error
	now      func() time.Time
}

var _ Service = (*Memory)(nil)

// NewMemory returns an empty in-memory service.
func NewMemory() *Memory {
	return &Memory{
		rows: make(map[models.Table][]models.Row),
		now:  time.Now,
	}
}

// SetDown makes every call fail with ErrUnavailable until cleared.
func (m *Memory) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// FailNext makes the next call of method fail with err. An empty method
// matches any call. Injected failures are consumed in order.
func (m *Memory) FailNext(method Method, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, injected{method: method, err: err})
}

// SetHook installs a function run before every call, outside the service
// lock. A non-nil return fails the call. Tests use it to block or observe.
func (m *Memory) SetHook(fn func(ctx context.Context, c Call) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Seed stores rows as if they had been inserted earlier. Rows without an
// id are given one.
func (m *Memory) Seed(table models.Table, rows ...models.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			r["id"] = uuid.NewString()
		}
		m.rows[table] = append(m.rows[table], r)
	}
}

// Rows returns copies of every stored row of table regardless of owner.
func (m *Memory) Rows(table models.Table) []models.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Row, 0, len(m.rows[table]))
	for _, r := range m.rows[table] {
		out = append(out, r.Clone())
	}
	return out
}

// Calls returns every call received so far, in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsOf returns the calls of one method, in order.
func (m *Memory) CallsOf(method Method) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// begin records the call and returns the error it should fail with, if any.
func (m *Memory) begin(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.calls = append(m.calls, c)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, c); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return fmt.Errorf("%s %s: %w", c.Method, c.Table, ErrUnavailable)
	}
	for i, f := range m.failures {
		if f.method == "" || f.method == c.Method {
			m.failures = append(m.failures[:i], m.failures[i+1:]...)
			return f.err
		}
	}
	return nil
}

// Select returns rows of table whose user_id equals ownerID.
func (m *Memory) Select(ctx context.Context, table models.Table, ownerID string) ([]models.Row, error) {
	if err := m.begin(ctx, Call{Method: MethodSelect, Table: table}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Row{}
	for _, r := range m.rows[table] {
		if owner, _ := r["user_id"].(string); owner == ownerID {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i]["created_at"].(string)
		b, _ := out[j]["created_at"].(string)
		return a > b
	})
	return out, nil
}

// Insert assigns a permanent id and created_at, stores the row and echoes it.
func (m *Memory) Insert(ctx context.Context, table models.Table, row models.Row) (models.Row, error) {
	if err := m.begin(ctx, Call{Method: MethodInsert, Table: table, Row: row.Clone()}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := row.Clone()
	stored["id"] = uuid.NewString()
	if ts, _ := stored["created_at"].(string); ts == "" || ts == (time.Time{}).Format(time.RFC3339) {
		stored["created_at"] = m.now().UTC().Format(time.RFC3339Nano)
	}
	m.rows[table] = append(m.rows[table], stored)
	return stored.Clone(), nil
}

// Update merges row into the stored row with the given id.
func (m *Memory) Update(ctx context.Context, table models.Table, id string, row models.Row) error {
	if err := m.begin(ctx, Call{Method: MethodUpdate, Table: table, ID: id, Row: row.Clone()}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows[table] {
		if r.ID() == id {
			for k, v := range row {
				if k == "id" {
					continue
				}
				r[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("update %s %s: %w", table, id, ErrNotFound)
}

// Delete removes the row with the given id. Deleting a missing row succeeds.
func (m *Memory) Delete(ctx context.Context, table models.Table, id string) error {
	if err := m.begin(ctx, Call{Method: MethodDelete, Table: table, ID: id}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[table]
	for i, r := range rows {
		if r.ID() == id {
			m.rows[table] = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	return nil
}
