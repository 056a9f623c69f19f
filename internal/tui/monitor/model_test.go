package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/shopspring/decimal"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/queue"
	"github.com/marcus/tally/internal/store"
)

type fakeStore struct {
	txs       []models.Transaction
	reminders []models.Reminder
	invs      []models.Investment
	ops       []queue.Operation
	paid      map[string]bool
	invested  []string
	discarded []string
	syncs     int
}

func (f *fakeStore) Transactions() []models.Transaction { return f.txs }
func (f *fakeStore) Reminders() []models.Reminder       { return f.reminders }
func (f *fakeStore) Investments() []models.Investment   { return f.invs }
func (f *fakeStore) Operations() []queue.Operation      { return f.ops }
func (f *fakeStore) State() store.State                 { return store.StateReady }
func (f *fakeStore) Refresh(context.Context) error      { return nil }

func (f *fakeStore) PendingIDs() map[string]bool {
	out := map[string]bool{}
	for _, op := range f.ops {
		out[op.Target()] = true
	}
	return out
}

func (f *fakeStore) SyncQueue(context.Context) (store.SyncResult, error) {
	f.syncs++
	n := len(f.ops)
	f.ops = nil
	return store.SyncResult{Synced: n}, nil
}

func (f *fakeStore) SetReminderPaid(_ context.Context, id string, paid bool) error {
	if f.paid == nil {
		f.paid = map[string]bool{}
	}
	f.paid[id] = paid
	return nil
}

func (f *fakeStore) MarkInvestmentDone(_ context.Context, id string) (models.Transaction, error) {
	for _, inv := range f.invs {
		if inv.ID == id && inv.Invested {
			return models.Transaction{}, store.ErrAlreadyInvested
		}
	}
	f.invested = append(f.invested, id)
	return models.Transaction{ID: "tx-" + id}, nil
}

func (f *fakeStore) DiscardOperation(id string) (queue.Operation, bool) {
	for i, op := range f.ops {
		if op.ID == id {
			f.ops = append(f.ops[:i], f.ops[i+1:]...)
			f.discarded = append(f.discarded, id)
			return op, true
		}
	}
	return queue.Operation{}, false
}

type fakeConn struct{ online bool }

func (c *fakeConn) Online() bool    { return c.online }
func (c *fakeConn) Set(online bool) { c.online = online }

func newTestModel(fs *fakeStore, conn *fakeConn) Model {
	m := NewModel(fs, conn, "USD", nil, time.Second)
	m.Width, m.Height = 100, 40
	m.Data = FetchData(fs, conn)
	return m
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "space":
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// run executes a command and feeds its message back, as the runtime would.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestPanelNavigation(t *testing.T) {
	m := newTestModel(&fakeStore{}, &fakeConn{online: true})
	if m.ActivePanel != PanelTransactions {
		t.Fatalf("initial panel = %v", m.ActivePanel)
	}
	m, _ = press(t, m, "tab")
	if m.ActivePanel != PanelReminders {
		t.Errorf("after tab = %v, want reminders", m.ActivePanel)
	}
	m, _ = press(t, m, "4")
	if m.ActivePanel != PanelQueue {
		t.Errorf("after 4 = %v, want queue", m.ActivePanel)
	}
	m, _ = press(t, m, "tab")
	if m.ActivePanel != PanelTransactions {
		t.Errorf("tab should wrap to transactions, got %v", m.ActivePanel)
	}
}

func TestToggleOnline(t *testing.T) {
	conn := &fakeConn{online: true}
	m := newTestModel(&fakeStore{}, conn)

	m, cmd := press(t, m, "o")
	if conn.online {
		t.Fatal("o should force offline")
	}
	m = run(t, m, cmd)
	if !strings.Contains(ansi.Strip(m.View()), "OFFLINE") {
		t.Error("view should show OFFLINE")
	}

	m, _ = press(t, m, "o")
	if !conn.online || m.Status != "back online" {
		t.Errorf("online=%v status=%q", conn.online, m.Status)
	}
}

func TestSyncKey(t *testing.T) {
	fs := &fakeStore{ops: []queue.Operation{{ID: "op-1", Table: models.TableTransactions, Action: queue.ActionDelete, EntityID: "t-1"}}}
	m := newTestModel(fs, &fakeConn{online: true})

	m, cmd := press(t, m, "s")
	if !m.Busy {
		t.Fatal("sync should mark the dashboard busy")
	}
	m = run(t, m, cmd)
	if m.Busy || fs.syncs != 1 {
		t.Errorf("busy=%v syncs=%d", m.Busy, fs.syncs)
	}
	if m.Status != "synced 1, 0 remaining" {
		t.Errorf("status = %q", m.Status)
	}
}

func TestSyncKeyOffline(t *testing.T) {
	fs := &fakeStore{}
	m := newTestModel(fs, &fakeConn{online: false})
	m, cmd := press(t, m, "s")
	m = run(t, m, cmd)
	if fs.syncs != 0 || m.Err == nil {
		t.Errorf("offline sync: syncs=%d err=%v", fs.syncs, m.Err)
	}
}

func TestToggleReminderPaid(t *testing.T) {
	fs := &fakeStore{reminders: []models.Reminder{
		{ID: "r-1", Title: "Rent", Amount: decimal.NewFromInt(900), DueDate: time.Now()},
		{ID: "r-2", Title: "Gym", Amount: decimal.NewFromInt(50), DueDate: time.Now(), Paid: true},
	}}
	m := newTestModel(fs, &fakeConn{online: true})
	m, _ = press(t, m, "2")
	m, _ = press(t, m, "j")

	m, cmd := press(t, m, "space")
	m = run(t, m, cmd)
	if paid, ok := fs.paid["r-2"]; !ok || paid {
		t.Errorf("r-2 should be flipped to unpaid, got %v %v", paid, ok)
	}
	if m.Status != "Gym marked unpaid" {
		t.Errorf("status = %q", m.Status)
	}
}

func TestInvestKey(t *testing.T) {
	fs := &fakeStore{invs: []models.Investment{
		{ID: "i-1", Name: "CDB", Amount: decimal.NewFromInt(1000), Invested: true},
		{ID: "i-2", Name: "ETF", Amount: decimal.NewFromInt(500)},
	}}
	m := newTestModel(fs, &fakeConn{online: true})
	m, _ = press(t, m, "3")

	m, cmd := press(t, m, "space")
	m = run(t, m, cmd)
	if m.Status != "CDB is already invested" || m.Err != nil {
		t.Errorf("status=%q err=%v", m.Status, m.Err)
	}

	m, _ = press(t, m, "j")
	m, cmd = press(t, m, "space")
	run(t, m, cmd)
	if len(fs.invested) != 1 || fs.invested[0] != "i-2" {
		t.Errorf("invested = %v", fs.invested)
	}
}

func TestDropQueuedOperation(t *testing.T) {
	fs := &fakeStore{ops: []queue.Operation{
		{ID: "op-1", Table: models.TableReminders, Action: queue.ActionUpdate, EntityID: "r-1"},
		{ID: "op-2", Table: models.TableReminders, Action: queue.ActionDelete, EntityID: "r-2"},
	}}
	m := newTestModel(fs, &fakeConn{})

	m, _ = press(t, m, "x")
	if len(fs.discarded) != 0 {
		t.Fatal("x outside the queue panel must do nothing")
	}

	m, _ = press(t, m, "4")
	m, _ = press(t, m, "j")
	m, cmd := press(t, m, "x")
	m = run(t, m, cmd)
	if len(fs.discarded) != 1 || fs.discarded[0] != "op-2" {
		t.Errorf("discarded = %v", fs.discarded)
	}
	if m.Cursor[PanelQueue] != 0 {
		t.Errorf("cursor should clamp to the remaining row, got %d", m.Cursor[PanelQueue])
	}
}

func TestViewShowsPendingAndNotices(t *testing.T) {
	fs := &fakeStore{
		txs: []models.Transaction{{ID: "temp_1_abc", Type: models.TypeExpense, Amount: decimal.NewFromInt(50), Category: "food", Date: time.Now()}},
		ops: []queue.Operation{{ID: "op-1", Table: models.TableTransactions, Action: queue.ActionInsert, TempID: "temp_1_abc"}},
	}
	notices := make(chan string, 1)
	m := NewModel(fs, &fakeConn{}, "USD", notices, time.Second)
	m.Width, m.Height = 100, 40
	m.Data = FetchData(fs, &fakeConn{})

	notices <- "Saved offline, will sync when back online"
	next, _ := m.Update(m.waitForNotice()())
	m = next.(Model)

	view := ansi.Strip(m.View())
	for _, want := range []string{"1 pending", "⟳ pending", "temp_1_abc", "Saved offline", "[insert]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestActionErrorIsShown(t *testing.T) {
	m := newTestModel(&fakeStore{}, &fakeConn{online: true})
	next, _ := m.Update(ActionDoneMsg{Err: errors.New("remote unavailable")})
	m = next.(Model)
	if !strings.Contains(ansi.Strip(m.View()), "remote unavailable") {
		t.Error("error should be visible in the header")
	}
}

func TestCompactView(t *testing.T) {
	m := newTestModel(&fakeStore{}, &fakeConn{})
	m.Width = 30
	if !strings.Contains(m.View(), "resize for full view") {
		t.Error("narrow terminal should get the compact view")
	}
}
