package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/tally/internal/store"
)

type keyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Up      key.Binding
	Down    key.Binding
	Online  key.Binding
	Sync    key.Binding
	Refresh key.Binding
	Act     key.Binding
	Drop    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Next:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next panel")),
		Prev:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("S-tab", "prev panel")),
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("↓/j", "down")),
		Online:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "toggle online")),
		Sync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync now")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refetch")),
		Act:     key.NewBinding(key.WithKeys(" ", "space", "enter"), key.WithHelp("space", "pay / invest")),
		Drop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "drop queued op")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Online, k.Sync, k.Act, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Up, k.Down},
		{k.Online, k.Sync, k.Refresh},
		{k.Act, k.Drop},
		{k.Help, k.Quit},
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.ShowHelp = !m.ShowHelp
		m.help.ShowAll = m.ShowHelp
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case msg.String() >= "1" && msg.String() <= "4" && len(msg.String()) == 1:
		m.ActivePanel = Panel(msg.String()[0] - '1')
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.Cursor[m.ActivePanel] < m.rows(m.ActivePanel)-1 {
			m.Cursor[m.ActivePanel]++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.Cursor[m.ActivePanel] > 0 {
			m.Cursor[m.ActivePanel]--
		}
		return m, nil

	case key.Matches(msg, m.keys.Online):
		online := !m.Conn.Online()
		m.Conn.Set(online)
		m.Status = "forced offline"
		if online {
			m.Status = "back online"
		}
		return m, m.fetchData()

	case key.Matches(msg, m.keys.Sync):
		return m.startAction(m.syncNow)

	case key.Matches(msg, m.keys.Refresh):
		return m.startAction(func(ctx context.Context) (string, error) {
			return "refetched", m.Store.Refresh(ctx)
		})

	case key.Matches(msg, m.keys.Act):
		return m.actOnSelection()

	case key.Matches(msg, m.keys.Drop):
		if m.ActivePanel != PanelQueue || m.rows(PanelQueue) == 0 {
			return m, nil
		}
		op := m.Data.Operations[m.Cursor[PanelQueue]]
		if _, ok := m.Store.DiscardOperation(op.ID); ok {
			m.Status = fmt.Sprintf("dropped %s %s", op.Action, op.Target())
		}
		return m, m.fetchData()
	}

	return m, nil
}

func (m Model) syncNow(ctx context.Context) (string, error) {
	if !m.Conn.Online() {
		return "", errors.New("offline: nothing sent")
	}
	res, err := m.Store.SyncQueue(ctx)
	if res.Skipped {
		return "sync already running", nil
	}
	return fmt.Sprintf("synced %d, %d remaining", res.Synced, res.Remaining), err
}

func (m Model) actOnSelection() (tea.Model, tea.Cmd) {
	i := m.Cursor[m.ActivePanel]
	switch m.ActivePanel {
	case PanelReminders:
		if i >= len(m.Data.Reminders) {
			return m, nil
		}
		r := m.Data.Reminders[i]
		return m.startAction(func(ctx context.Context) (string, error) {
			if err := m.Store.SetReminderPaid(ctx, r.ID, !r.Paid); err != nil {
				return "", err
			}
			if r.Paid {
				return r.Title + " marked unpaid", nil
			}
			return r.Title + " marked paid", nil
		})
	case PanelInvestments:
		if i >= len(m.Data.Investments) {
			return m, nil
		}
		inv := m.Data.Investments[i]
		return m.startAction(func(ctx context.Context) (string, error) {
			if _, err := m.Store.MarkInvestmentDone(ctx, inv.ID); err != nil {
				if errors.Is(err, store.ErrAlreadyInvested) {
					return inv.Name + " is already invested", nil
				}
				return "", err
			}
			return inv.Name + " invested", nil
		})
	}
	return m, nil
}

// startAction runs fn off the UI goroutine with the dashboard's timeout.
func (m Model) startAction(fn func(ctx context.Context) (string, error)) (tea.Model, tea.Cmd) {
	if m.Busy {
		return m, nil
	}
	m.Busy = true
	m.Err = nil
	timeout := m.OpTimeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		status, err := fn(ctx)
		return ActionDoneMsg{Status: status, Err: err}
	}
}
