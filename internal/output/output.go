// Package output provides styled terminal output helpers (success, error,
// warning, money and entity formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/marcus/tally/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	typeStyles   = map[models.TransactionType]lipgloss.Style{
		models.TypeIncome:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.TypeExpense: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// JSON outputs data as JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeNoOwner      = "not_logged_in"
	ErrCodeStorage      = "storage_error"
	ErrCodeRemote       = "remote_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatAmount renders amount in currency using the currency's grapheme,
// separators and fraction digits. Unknown currencies fall back to the plain
// decimal followed by the code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

// FormatSignedAmount prefixes income with + and expenses with -.
func FormatSignedAmount(t models.TransactionType, amount decimal.Decimal, currency string) string {
	s := FormatAmount(amount.Abs(), currency)
	sign := "+"
	if t == models.TypeExpense {
		sign = "-"
	}
	if style, ok := typeStyles[t]; ok {
		return style.Render(sign + s)
	}
	return sign + s
}

// PendingMark is appended to entities still awaiting remote confirmation.
func PendingMark(pending bool) string {
	if !pending {
		return ""
	}
	return "  " + pendingStyle.Render("⟳ pending")
}

// FormatTransaction formats a transaction on one line.
func FormatTransaction(tx models.Transaction, currency string, pending bool) string {
	parts := []string{
		titleStyle.Render(ShortID(tx.ID)),
		tx.Date.Format("2006-01-02"),
		FormatSignedAmount(tx.Type, tx.Amount, currency),
		tx.Category,
	}
	if tx.Description != "" {
		parts = append(parts, subtleStyle.Render(tx.Description))
	}
	return strings.Join(parts, "  ") + PendingMark(pending)
}

// FormatReminder formats a reminder on one line.
func FormatReminder(r models.Reminder, currency string, now time.Time, pending bool) string {
	status := warningStyle.Render("[due " + FormatDue(r.DueDate, now) + "]")
	if r.Paid {
		status = successStyle.Render("[paid]")
	} else if r.DueDate.Before(now) {
		status = errorStyle.Render("[overdue]")
	}
	parts := []string{
		titleStyle.Render(ShortID(r.ID)),
		r.DueDate.Format("2006-01-02"),
		FormatAmount(r.Amount, currency),
		r.Title,
	}
	if r.Frequency != "" && r.Frequency != models.FrequencyOnce {
		parts = append(parts, subtleStyle.Render(string(r.Frequency)))
	}
	parts = append(parts, status)
	return strings.Join(parts, "  ") + PendingMark(pending)
}

// FormatInvestment formats an investment on one line.
func FormatInvestment(inv models.Investment, currency string, pending bool) string {
	status := subtleStyle.Render("[planned " + inv.PlannedDate.Format("2006-01-02") + "]")
	if inv.Invested {
		realized := ""
		if inv.RealizedAt != nil {
			realized = " " + inv.RealizedAt.Format("2006-01-02")
		}
		status = successStyle.Render("[invested" + realized + "]")
	}
	parts := []string{
		titleStyle.Render(ShortID(inv.ID)),
		FormatAmount(inv.Amount, currency),
		inv.Name,
	}
	if inv.Kind != "" {
		parts = append(parts, subtleStyle.Render(inv.Kind))
	}
	parts = append(parts, status)
	return strings.Join(parts, "  ") + PendingMark(pending)
}

// ShortID shortens permanent uuids to 8 characters. Temporary ids are shown
// whole so they can be told apart.
func ShortID(id string) string {
	if models.IsTempID(id) || len(id) <= 8 {
		return id
	}
	return id[:8]
}

// FormatDue describes a due date relative to now in whole days.
func FormatDue(due, now time.Time) string {
	y1, m1, d1 := due.Date()
	y2, m2, d2 := now.Date()
	days := int(time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC).Sub(time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)).Hours() / 24)
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days > 1:
		return fmt.Sprintf("in %dd", days)
	case days == -1:
		return "yesterday"
	default:
		return fmt.Sprintf("%dd ago", -days)
	}
}

// FormatTimeAgo formats a duration as a human-readable "ago" string
func FormatTimeAgo(diff time.Duration) string {
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// ConnectivityBadge shows online or offline.
func ConnectivityBadge(online bool) string {
	if online {
		return successStyle.Render("● online")
	}
	return warningStyle.Render("○ offline")
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nREMINDERS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}
