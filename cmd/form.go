package cmd

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/shopspring/decimal"

	"github.com/marcus/tally/internal/models"
)

var (
	errAmountRequired   = errors.New("amount must be a positive number")
	errCategoryRequired = errors.New("category is required")
)

// transactionForm holds the string-typed values huh edits.
type transactionForm struct {
	Type        string
	Amount      string
	Category    string
	Description string
	Date        string
}

func newTransactionForm(tx models.Transaction) *transactionForm {
	f := &transactionForm{
		Type:        string(tx.Type),
		Category:    tx.Category,
		Description: tx.Description,
		Date:        tx.Date.Format("2006-01-02"),
	}
	if tx.Amount.IsPositive() {
		f.Amount = tx.Amount.String()
	}
	return f
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil || !d.IsPositive() {
		return errAmountRequired
	}
	return nil
}

func validateDate(s string) error {
	_, err := parseDate(s, time.Now())
	return err
}

func (f *transactionForm) build() *huh.Form {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Type").
				Options(
					huh.NewOption("Expense", string(models.TypeExpense)),
					huh.NewOption("Income", string(models.TypeIncome)),
				).
				Value(&f.Type),
			huh.NewInput().
				Title("Amount").
				Value(&f.Amount).
				Placeholder("0.00").
				Validate(validateAmount),
			huh.NewInput().
				Title("Category").
				Value(&f.Category).
				Placeholder("food, rent, salary...").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errCategoryRequired
					}
					return nil
				}),
			huh.NewInput().
				Title("Date").
				Value(&f.Date).
				Placeholder("YYYY-MM-DD").
				Validate(validateDate),
			huh.NewText().
				Title("Description").
				Value(&f.Description).
				Placeholder("Optional...").
				Lines(2),
		).Title("New Transaction"),
	)
	return form.WithTheme(huh.ThemeDracula())
}

// apply copies the form values onto tx.
func (f *transactionForm) apply(tx *models.Transaction) error {
	if err := validateAmount(f.Amount); err != nil {
		return err
	}
	date, err := parseDate(f.Date, time.Now())
	if err != nil {
		return err
	}
	tx.Type = models.TransactionType(f.Type)
	tx.Amount = decimal.RequireFromString(strings.ReplaceAll(strings.TrimSpace(f.Amount), ",", "."))
	tx.Category = strings.TrimSpace(f.Category)
	tx.Description = strings.TrimSpace(f.Description)
	tx.Date = date
	return nil
}

// runTransactionForm lets the user edit tx interactively.
func runTransactionForm(tx *models.Transaction) error {
	f := newTransactionForm(*tx)
	if err := f.build().Run(); err != nil {
		return err
	}
	return f.apply(tx)
}
