package cmd

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/marcus/tally/internal/models"
)

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"today", "2026-03-10"},
		{"Tomorrow", "2026-03-11"},
		{"yesterday", "2026-03-09"},
		{"2026-04-01", "2026-04-01"},
		{" 2026-04-01 ", "2026-04-01"},
		{"2026-04-01T12:00:00Z", "2026-04-01"},
		{"2026-04-01 09:15", "2026-04-01"},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in, now)
		if err != nil {
			t.Errorf("parseDate(%q): %v", tt.in, err)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("parseDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}

	if _, err := parseDate("next week", now); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestAmountFlagAcceptsDecimalComma(t *testing.T) {
	var amount decimal.Decimal
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	amountFlag(fs, &amount, "amount")

	if err := fs.Parse([]string{"-a", "12,50"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !amount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("amount = %s, want 12.5", amount)
	}
	if !changedFields(fs, "amount", "date")["amount"] {
		t.Error("amount should be reported as changed")
	}

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	amountFlag(fs, &amount, "amount")
	if err := fs.Parse([]string{"--amount", "twelve"}); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestDateFlag(t *testing.T) {
	var due time.Time
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	dateFlag(fs, &due, "due", "due date")

	if err := fs.Parse([]string{"--due", "2026-05-20"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if due.Format("2006-01-02") != "2026-05-20" {
		t.Errorf("due = %v", due)
	}
	if got := fs.Lookup("due").Value.String(); got != "2026-05-20" {
		t.Errorf("flag String() = %q", got)
	}
}

func TestChangedFieldsOmitsUnset(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("title", "", "")
	fs.String("category", "", "")
	if err := fs.Parse([]string{"--title", "rent"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	changed := changedFields(fs, "title", "category")
	if len(changed) != 1 || !changed["title"] {
		t.Errorf("changed = %v, want only title", changed)
	}
}

func TestResolveID(t *testing.T) {
	ids := []string{
		"3f2a9c10-0000-4000-8000-000000000001",
		"3f2b0000-0000-4000-8000-000000000002",
		"temp_1760000000000_abcdefghi",
	}

	got, err := resolveID("3f2a", ids)
	if err != nil || got != ids[0] {
		t.Errorf("resolveID(3f2a) = %q, %v", got, err)
	}
	got, err = resolveID(ids[2], ids)
	if err != nil || got != ids[2] {
		t.Errorf("exact temp id = %q, %v", got, err)
	}
	if _, err := resolveID("3f2", ids); err == nil {
		t.Error("expected ambiguity error")
	}
	if _, err := resolveID("ffff", ids); err == nil {
		t.Error("expected no-match error")
	}
}

func TestTransactionFormApply(t *testing.T) {
	f := newTransactionForm(models.Transaction{Type: models.TypeExpense})
	f.Amount = "19,90"
	f.Category = "  food "
	f.Date = "2026-02-14"
	f.Description = "pizza"

	var tx models.Transaction
	if err := f.apply(&tx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if tx.Type != models.TypeExpense || tx.Category != "food" || tx.Description != "pizza" {
		t.Errorf("unexpected tx %+v", tx)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("19.9")) {
		t.Errorf("amount = %s", tx.Amount)
	}
	if tx.Date.Format("2006-01-02") != "2026-02-14" {
		t.Errorf("date = %v", tx.Date)
	}

	f.Amount = "-3"
	if err := f.apply(&tx); err != errAmountRequired {
		t.Errorf("negative amount: got %v, want errAmountRequired", err)
	}
}
