package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Table names a remote collection.
type Table string

const (
	TableTransactions Table = "transactions"
	TableReminders    Table = "reminders"
	TableInvestments  Table = "investments"
)

// AllTables lists every synchronized collection in load order.
var AllTables = []Table{TableTransactions, TableReminders, TableInvestments}

// Valid reports whether t is one of the synchronized collections.
func (t Table) Valid() bool {
	switch t {
	case TableTransactions, TableReminders, TableInvestments:
		return true
	}
	return false
}

// ParseTable accepts singular and plural collection names.
func ParseTable(s string) (Table, error) {
	switch s {
	case "transaction", "transactions", "tx":
		return TableTransactions, nil
	case "reminder", "reminders":
		return TableReminders, nil
	case "investment", "investments":
		return TableInvestments, nil
	}
	return "", fmt.Errorf("unknown table: %q", s)
}

// TransactionType distinguishes money coming in from money going out
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// CategoryInvestment marks expenses created by realizing an investment.
const CategoryInvestment = "investment"

// Frequency is how often a reminder repeats
type Frequency string

const (
	FrequencyOnce    Frequency = "once"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Entity is implemented by every record kept in a synchronized collection.
type Entity interface {
	EntityID() string
}

// Transaction is a single income or expense entry.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (t Transaction) EntityID() string { return t.ID }

// Reminder is a bill or recurring payment the user wants to be reminded of.
type Reminder struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date"`
	Frequency Frequency       `json:"frequency"`
	Paid      bool            `json:"is_paid"`
	Category  string          `json:"category,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r Reminder) EntityID() string { return r.ID }

// Investment is a planned or realized investment. Realizing it creates an
// expense transaction referenced by TransactionID.
type Investment struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Kind          string          `json:"kind,omitempty"`
	Amount        decimal.Decimal `json:"valor_investido"`
	PlannedDate   time.Time       `json:"data_planejada"`
	Invested      bool            `json:"ja_investido"`
	RealizedAt    *time.Time      `json:"data_realizacao,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (i Investment) EntityID() string { return i.ID }

// Validate checks the business fields a transaction needs before it reaches the store.
func (t Transaction) Validate() error {
	if t.Type != TypeIncome && t.Type != TypeExpense {
		return fmt.Errorf("invalid transaction type: %q", t.Type)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if t.Category == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// Validate checks the business fields a reminder needs before it reaches the store.
func (r Reminder) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if r.DueDate.IsZero() {
		return fmt.Errorf("due date is required")
	}
	switch r.Frequency {
	case "", FrequencyOnce, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return fmt.Errorf("invalid frequency: %q", r.Frequency)
	}
	return nil
}

// Validate checks the business fields an investment needs before it reaches the store.
func (i Investment) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !i.Amount.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}
