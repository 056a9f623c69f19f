package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/output"
	"github.com/marcus/tally/internal/queue"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Replay queued changes against the remote service",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			if !a.conn.Online() {
				return fmt.Errorf("remote %s unreachable; %d operation(s) stay queued", a.client.BaseURL, a.store.PendingCount())
			}
			if a.store.PendingCount() == 0 {
				return printJSONOr(map[string]int{"synced": 0, "remaining": 0}, func() {
					output.Info("Nothing to sync")
				})
			}

			res, err := a.store.SyncQueue(ctx)
			perr := printJSONOr(res, func() {
				if res.Skipped {
					output.Info("A sync is already running")
					return
				}
				for temp, perm := range res.Rewrites {
					output.Info("%s -> %s", temp, output.ShortID(perm))
				}
				if res.Remaining > 0 {
					output.Warning("%d operation(s) still queued", res.Remaining)
				}
			})
			if err != nil {
				return err
			}
			return perr
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:     "refresh",
	Short:   "Reload every collection from the remote service",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			if !a.conn.Online() {
				return errors.New("remote unreachable; showing cached data only")
			}
			if err := a.store.Refresh(ctx); err != nil {
				return err
			}
			output.Success("Refreshed %d transactions, %d reminders, %d investments",
				len(a.store.Transactions()), len(a.store.Reminders()), len(a.store.Investments()))
			return nil
		})
	},
}

var queueCmd = &cobra.Command{
	Use:     "queue",
	Short:   "Inspect changes waiting to be synced",
	GroupID: "sync",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued operations in replay order",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			ops := a.store.Operations()
			return printJSONOr(ops, func() {
				if len(ops) == 0 {
					output.Info("Queue is empty")
					return
				}
				now := time.Now()
				for _, op := range ops {
					fmt.Println(formatOperation(op, now))
				}
			})
		})
	},
}

var queueDropCmd = &cobra.Command{
	Use:   "drop <op-id>",
	Short: "Discard a queued operation without replaying it",
	Long: `Discard a queued operation. The local change it carried stays in the
cached collections until the next refresh from the remote service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			ops := a.store.Operations()
			ids := make([]string, len(ops))
			for i, op := range ops {
				ids[i] = op.ID
			}
			id, err := resolveID(args[0], ids)
			if err != nil {
				return err
			}
			op, ok := a.store.DiscardOperation(id)
			if !ok {
				return fmt.Errorf("operation %s is no longer queued", id)
			}
			output.Success("Dropped %s", formatOperation(op, time.Now()))
			return nil
		})
	},
}

func formatOperation(op queue.Operation, now time.Time) string {
	return fmt.Sprintf("%s  %-6s %-12s %s  %s",
		output.ShortID(op.ID), op.Action, op.Table, output.ShortID(op.Target()),
		output.FormatTimeAgo(now.Sub(op.CreatedAt)))
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show connectivity, queue and local cache state",
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			st := output.Status{
				Owner:   a.owner,
				Remote:  a.client.BaseURL,
				Online:  a.conn.Online(),
				State:   a.store.State().String(),
				Pending: a.store.PendingCount(),
				Quota:   cfg.Storage.QuotaBytes,
			}
			counts := map[models.Table]int{
				models.TableTransactions: len(a.store.Transactions()),
				models.TableReminders:    len(a.store.Reminders()),
				models.TableInvestments:  len(a.store.Investments()),
			}
			for _, t := range models.AllTables {
				age, ok := a.store.CacheAge(t)
				st.Tables = append(st.Tables, output.TableStatus{
					Name:     string(t),
					Count:    counts[t],
					CacheAge: age,
					Cached:   ok,
				})
			}
			usage, err := a.local.Usage()
			if err != nil {
				return fmt.Errorf("local storage usage: %w", err)
			}
			st.Usage = usage

			return printJSONOr(st, func() {
				rendered, err := output.RenderMarkdown(output.StatusMarkdown(st))
				if err != nil {
					fmt.Print(output.StatusMarkdown(st))
					return
				}
				fmt.Println(rendered)
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, refreshCmd, queueCmd, statusCmd)
	queueCmd.AddCommand(queueListCmd, queueDropCmd)
}
