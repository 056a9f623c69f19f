// Package monitor is the live sync dashboard: the three collections, the
// pending queue and the connectivity state, refreshed on a timer.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/queue"
	"github.com/marcus/tally/internal/store"
)

// Panel represents which panel is active
type Panel int

const (
	PanelTransactions Panel = iota
	PanelReminders
	PanelInvestments
	PanelQueue
	panelCount
)

func (p Panel) title() string {
	switch p {
	case PanelTransactions:
		return "TRANSACTIONS"
	case PanelReminders:
		return "REMINDERS"
	case PanelInvestments:
		return "INVESTMENTS"
	case PanelQueue:
		return "PENDING QUEUE"
	}
	return ""
}

// Store is the part of *store.Store the dashboard reads and drives.
type Store interface {
	Transactions() []models.Transaction
	Reminders() []models.Reminder
	Investments() []models.Investment
	Operations() []queue.Operation
	PendingIDs() map[string]bool
	State() store.State
	SyncQueue(ctx context.Context) (store.SyncResult, error)
	Refresh(ctx context.Context) error
	SetReminderPaid(ctx context.Context, id string, paid bool) error
	MarkInvestmentDone(ctx context.Context, id string) (models.Transaction, error)
	DiscardOperation(opID string) (queue.Operation, bool)
}

// Connectivity is the monitor the dashboard shows and can override.
type Connectivity interface {
	Online() bool
	Set(online bool)
}

// Snapshot is one read of everything the dashboard shows.
type Snapshot struct {
	Transactions []models.Transaction
	Reminders    []models.Reminder
	Investments  []models.Investment
	Operations   []queue.Operation
	Pending      map[string]bool
	State        store.State
	Online       bool
	Timestamp    time.Time
}

// Model is the main Bubble Tea model for the dashboard
type Model struct {
	Store    Store
	Conn     Connectivity
	Currency string
	Notices  <-chan string

	// Window dimensions
	Width  int
	Height int

	Data Snapshot

	// UI state
	ActivePanel Panel
	Cursor      map[Panel]int
	ShowHelp    bool
	Busy        bool
	Status      string
	Err         error

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	RefreshInterval time.Duration
	OpTimeout       time.Duration
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// TickMsg triggers a data refresh
type TickMsg time.Time

// NoticeMsg carries a user-facing message from the store.
type NoticeMsg string

// ActionDoneMsg reports the end of a remote action started from the dashboard.
type ActionDoneMsg struct {
	Status string
	Err    error
}

// NewModel creates a new dashboard model
func NewModel(s Store, conn Connectivity, currency string, notices <-chan string, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle
	return Model{
		Store:           s,
		Conn:            conn,
		Currency:        currency,
		Notices:         notices,
		Cursor:          make(map[Panel]int),
		keys:            defaultKeys(),
		help:            help.New(),
		spinner:         sp,
		RefreshInterval: interval,
		OpTimeout:       30 * time.Second,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.waitForNotice(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case Snapshot:
		m.Data = msg
		m.clampCursors()
		return m, nil

	case NoticeMsg:
		m.Status = string(msg)
		return m, tea.Batch(m.fetchData(), m.waitForNotice())

	case ActionDoneMsg:
		m.Busy = false
		m.Err = msg.Err
		if msg.Status != "" {
			m.Status = msg.Status
		}
		return m, m.fetchData()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		return FetchData(m.Store, m.Conn)
	}
}

func (m Model) waitForNotice() tea.Cmd {
	if m.Notices == nil {
		return nil
	}
	ch := m.Notices
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return NoticeMsg(msg)
	}
}

// rows is the number of selectable rows in a panel.
func (m Model) rows(p Panel) int {
	switch p {
	case PanelTransactions:
		return len(m.Data.Transactions)
	case PanelReminders:
		return len(m.Data.Reminders)
	case PanelInvestments:
		return len(m.Data.Investments)
	case PanelQueue:
		return len(m.Data.Operations)
	}
	return 0
}

func (m *Model) clampCursors() {
	for p := Panel(0); p < panelCount; p++ {
		n := m.rows(p)
		if m.Cursor[p] >= n {
			m.Cursor[p] = max(n-1, 0)
		}
	}
}
