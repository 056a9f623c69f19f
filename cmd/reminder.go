package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/output"
)

var reminderCmd = &cobra.Command{
	Use:     "reminder",
	Aliases: []string{"bill"},
	Short:   "Manage bill reminders",
	GroupID: "records",
}

var (
	reminderAmount decimal.Decimal
	reminderDue    time.Time
)

var reminderAddCmd = &cobra.Command{
	Use:     "add <title>",
	Short:   "Add a reminder",
	Example: `  tally reminder add "Rent" --amount 1200 --due 2026-04-05 --frequency monthly`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		freq, _ := cmd.Flags().GetString("frequency")
		category, _ := cmd.Flags().GetString("category")
		r := models.Reminder{
			Title:     args[0],
			Amount:    reminderAmount,
			DueDate:   reminderDue,
			Frequency: models.Frequency(freq),
			Category:  category,
		}
		if err := r.Validate(); err != nil {
			output.Error("%v", err)
			return err
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			added, err := a.store.AddReminder(ctx, r)
			if err != nil {
				return err
			}
			return printJSONOr(added, func() {
				output.Success("Added %s", output.FormatReminder(added, cfg.Currency, time.Now(), models.IsTempID(added.ID)))
			})
		})
	},
}

var reminderListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reminders by due date",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		unpaid, _ := cmd.Flags().GetBool("unpaid")
		return withApp(false, func(ctx context.Context, a *app) error {
			var rs []models.Reminder
			for _, r := range a.store.Reminders() {
				if unpaid && r.Paid {
					continue
				}
				rs = append(rs, r)
			}
			return printJSONOr(rs, func() {
				if len(rs) == 0 {
					output.Info("No reminders")
					return
				}
				pending := a.store.PendingIDs()
				now := time.Now()
				for _, r := range rs {
					fmt.Println(output.FormatReminder(r, cfg.Currency, now, pending[r.ID]))
				}
			})
		})
	},
}

var reminderPayCmd = &cobra.Command{
	Use:   "pay <id>",
	Short: "Mark a reminder paid (or unpaid with --undo)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], reminderIDs(a))
			if err != nil {
				return err
			}
			if err := a.store.SetReminderPaid(ctx, id, !undo); err != nil {
				return err
			}
			if undo {
				output.Success("Marked %s unpaid", output.ShortID(id))
			} else {
				output.Success("Marked %s paid", output.ShortID(id))
			}
			return nil
		})
	},
}

var reminderUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		changed := changedFields(fs, "title", "amount", "due", "frequency", "category")
		if len(changed) == 0 {
			err := fmt.Errorf("nothing to update")
			output.Error("%v", err)
			return err
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], reminderIDs(a))
			if err != nil {
				return err
			}
			patch := models.Row{}
			if changed["title"] {
				patch["title"], _ = fs.GetString("title")
			}
			if changed["amount"] {
				patch["amount"] = reminderAmount.String()
			}
			if changed["due"] {
				patch["due_date"] = reminderDue.Format(time.RFC3339)
			}
			if changed["frequency"] {
				patch["frequency"], _ = fs.GetString("frequency")
			}
			if changed["category"] {
				patch["category"], _ = fs.GetString("category")
			}
			if err := a.store.UpdateFields(ctx, models.TableReminders, id, patch); err != nil {
				return err
			}
			output.Success("Updated %s", output.ShortID(id))
			return nil
		})
	},
}

var reminderDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a reminder",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], reminderIDs(a))
			if err != nil {
				return err
			}
			if err := a.store.DeleteReminder(ctx, id); err != nil {
				return err
			}
			output.Success("Deleted %s", output.ShortID(id))
			return nil
		})
	},
}

func reminderIDs(a *app) []string {
	rs := a.store.Reminders()
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func init() {
	rootCmd.AddCommand(reminderCmd)
	reminderCmd.AddCommand(reminderAddCmd, reminderListCmd, reminderPayCmd, reminderUpdateCmd, reminderDeleteCmd)

	for _, c := range []*cobra.Command{reminderAddCmd, reminderUpdateCmd} {
		fs := c.Flags()
		amountFlag(fs, &reminderAmount, "amount due")
		dateFlag(fs, &reminderDue, "due", "due date (YYYY-MM-DD)")
		fs.StringP("frequency", "f", string(models.FrequencyMonthly), "once, weekly, monthly or yearly")
		fs.StringP("category", "c", "", "category")
	}
	reminderUpdateCmd.Flags().String("title", "", "new title")
	reminderListCmd.Flags().Bool("unpaid", false, "hide paid reminders")
	reminderPayCmd.Flags().Bool("undo", false, "mark unpaid instead")
}
