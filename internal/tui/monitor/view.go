package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/tally/internal/output"
)

func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	avail := m.Height - lipgloss.Height(header) - lipgloss.Height(footer)

	// The active panel gets the spare rows; the others stay compact.
	small := max(avail/6, 4)
	var panels []string
	for p := Panel(0); p < panelCount; p++ {
		h := small
		if p == m.ActivePanel {
			h = avail - small*int(panelCount-1)
		}
		panels = append(panels, m.renderPanel(p, h))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinVertical(lipgloss.Left, panels...),
		footer,
	)
}

func (m Model) renderCompact() string {
	var s strings.Builder
	s.WriteString("tally monitor (resize for full view)\n\n")
	fmt.Fprintf(&s, "%s  %s\n", m.connBadge(), m.Data.State)
	fmt.Fprintf(&s, "Pending: %d\n", len(m.Data.Operations))
	fmt.Fprintf(&s, "Tx: %d | Reminders: %d | Investments: %d\n",
		len(m.Data.Transactions), len(m.Data.Reminders), len(m.Data.Investments))
	s.WriteString("\nq:quit o:online s:sync ?:help")
	return s.String()
}

func (m Model) connBadge() string {
	if m.Data.Online {
		return onlineStyle.Render("● ONLINE")
	}
	return offlineStyle.Render("○ OFFLINE")
}

func (m Model) renderHeader() string {
	parts := []string{m.connBadge(), subtleStyle.Render(m.Data.State.String())}
	if n := len(m.Data.Operations); n > 0 {
		parts = append(parts, pendingStyle.Render(fmt.Sprintf("%d pending", n)))
	}
	if m.Busy {
		parts = append(parts, m.spinner.View())
	}
	if m.Err != nil {
		parts = append(parts, errorStyle.Render(m.Err.Error()))
	} else if m.Status != "" {
		parts = append(parts, m.Status)
	}
	return ansi.Truncate(strings.Join(parts, "  "), m.Width, "…")
}

func (m Model) renderFooter() string {
	if !m.Data.Timestamp.IsZero() {
		refreshed := subtleStyle.Render("refreshed " + m.Data.Timestamp.Format(time.TimeOnly))
		return lipgloss.JoinVertical(lipgloss.Left, m.help.View(m.keys), refreshed)
	}
	return m.help.View(m.keys)
}

func (m Model) renderPanel(p Panel, height int) string {
	lines := m.panelLines(p)
	title := fmt.Sprintf("%d %s (%d)", int(p)+1, p.title(), len(lines))
	if len(lines) == 0 {
		return m.wrapPanel(title, []string{subtleStyle.Render("nothing here")}, height, p)
	}

	cursor := m.Cursor[p]
	active := m.ActivePanel == p
	visible := max(height-3, 1)
	offset := 0
	if cursor >= visible {
		offset = cursor - visible + 1
	}

	var out []string
	for i := offset; i < len(lines) && i < offset+visible; i++ {
		line := "  " + lines[i]
		if active && i == cursor {
			line = selectedRowStyle.Render("> ") + lines[i]
		}
		out = append(out, line)
	}
	return m.wrapPanel(title, out, height, p)
}

func (m Model) panelLines(p Panel) []string {
	var lines []string
	switch p {
	case PanelTransactions:
		for _, tx := range m.Data.Transactions {
			lines = append(lines, output.FormatTransaction(tx, m.Currency, m.Data.Pending[tx.ID]))
		}
	case PanelReminders:
		now := time.Now()
		for _, r := range m.Data.Reminders {
			lines = append(lines, output.FormatReminder(r, m.Currency, now, m.Data.Pending[r.ID]))
		}
	case PanelInvestments:
		for _, inv := range m.Data.Investments {
			lines = append(lines, output.FormatInvestment(inv, m.Currency, m.Data.Pending[inv.ID]))
		}
	case PanelQueue:
		for _, op := range m.Data.Operations {
			lines = append(lines, fmt.Sprintf("%s %s %s  %s",
				formatAction(op.Action), op.Table, output.ShortID(op.Target()),
				subtleStyle.Render(op.CreatedAt.Format(time.DateTime))))
		}
	}
	return lines
}

func (m Model) wrapPanel(title string, lines []string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	contentWidth := m.Width - 4
	contentHeight := max(height-3, 1)
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	lines = lines[:contentHeight]
	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, panelTitleStyle.Render(title), strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}
