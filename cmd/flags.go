package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/marcus/tally/internal/dateparse"
)

// decimalValue is a pflag.Value holding a money amount.
type decimalValue struct {
	d   *decimal.Decimal
	set bool
}

func (v *decimalValue) String() string {
	if v.d == nil || !v.set {
		return ""
	}
	return v.d.String()
}

func (v *decimalValue) Set(s string) error {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*v.d = d
	v.set = true
	return nil
}

func (v *decimalValue) Type() string { return "amount" }

// dateValue is a pflag.Value accepting anything dateparse understands.
type dateValue struct {
	t   *time.Time
	set bool
}

func parseDate(s string, now time.Time) (time.Time, error) {
	return dateparse.ParseFrom(s, now)
}

func (v *dateValue) String() string {
	if v.t == nil || !v.set {
		return ""
	}
	return v.t.Format("2006-01-02")
}

func (v *dateValue) Set(s string) error {
	t, err := parseDate(s, time.Now())
	if err != nil {
		return err
	}
	*v.t = t
	v.set = true
	return nil
}

func (v *dateValue) Type() string { return "date" }

// amountFlag registers --amount on fs.
func amountFlag(fs *pflag.FlagSet, into *decimal.Decimal, usage string) {
	fs.VarP(&decimalValue{d: into}, "amount", "a", usage)
}

// dateFlag registers a date flag on fs.
func dateFlag(fs *pflag.FlagSet, into *time.Time, name, usage string) {
	fs.Var(&dateValue{t: into}, name, usage)
}

// changedFields lists which of names were given on the command line.
func changedFields(fs *pflag.FlagSet, names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if fs.Changed(n) {
			out[n] = true
		}
	}
	return out
}

// resolveID matches ref against ids exactly or as a unique prefix, so the
// short ids printed by list commands can be typed back.
func resolveID(ref string, ids []string) (string, error) {
	var matches []string
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no record matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%q is ambiguous (%d matches)", ref, len(matches))
}
