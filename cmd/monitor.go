package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/tally/internal/tui/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of records, queue and connectivity",
	Long: `Launch a live-updating dashboard showing transactions, reminders,
investments and the queue of changes waiting to sync.

Key bindings:
  Tab/Shift+Tab  Switch panels
  1-4            Jump to panel
  ↑/↓            Select row
  space/enter    Toggle reminder paid / realize investment
  x              Drop the selected queued operation
  o              Toggle online/offline
  s              Sync now
  r              Refresh
  ?              Toggle help
  q              Quit`,
	GroupID: "sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}
		probeEvery, _ := cmd.Flags().GetDuration("probe-every")

		return withApp(false, func(ctx context.Context, a *app) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			notices := a.streamNotices(16)
			go a.store.Watch(ctx)
			if probeEvery > 0 && !offlineRun {
				go a.probeLoop(ctx, probeEvery)
			}

			model := monitor.NewModel(a.store, a.conn, cfg.Currency, notices, interval)
			p := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("error running monitor: %w", err)
			}
			return nil
		})
	},
}

// probeLoop re-checks the remote health endpoint and feeds the result to
// the connectivity monitor. A manual offline toggle lasts until the next probe.
func (a *app) probeLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.conn.Set(a.probe(ctx))
		}
	}
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "refresh interval")
	monitorCmd.Flags().Duration("probe-every", 0, "re-check remote reachability this often (0 disables)")
}
