package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/output"
	"github.com/marcus/tally/internal/store"
)

var investCmd = &cobra.Command{
	Use:     "invest",
	Aliases: []string{"investment"},
	Short:   "Plan and track investments",
	GroupID: "records",
}

var (
	investAmount  decimal.Decimal
	investPlanned time.Time
)

var investAddCmd = &cobra.Command{
	Use:     "add <name>",
	Short:   "Plan an investment",
	Example: `  tally invest add "Treasury 2029" --amount 1000 --planned 2026-05-01 --kind bonds`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		inv := models.Investment{
			Name:        args[0],
			Kind:        kind,
			Amount:      investAmount,
			PlannedDate: investPlanned,
		}
		if inv.PlannedDate.IsZero() {
			inv.PlannedDate = today()
		}
		if err := inv.Validate(); err != nil {
			output.Error("%v", err)
			return err
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			added, err := a.store.AddInvestment(ctx, inv)
			if err != nil {
				return err
			}
			return printJSONOr(added, func() {
				output.Success("Planned %s", output.FormatInvestment(added, cfg.Currency, models.IsTempID(added.ID)))
			})
		})
	},
}

var investListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List investments",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(false, func(ctx context.Context, a *app) error {
			invs := a.store.Investments()
			return printJSONOr(invs, func() {
				if len(invs) == 0 {
					output.Info("No investments")
					return
				}
				pending := a.store.PendingIDs()
				var planned, invested decimal.Decimal
				for _, inv := range invs {
					fmt.Println(output.FormatInvestment(inv, cfg.Currency, pending[inv.ID]))
					if inv.Invested {
						invested = invested.Add(inv.Amount)
					} else {
						planned = planned.Add(inv.Amount)
					}
				}
				fmt.Printf("\nInvested %s  Planned %s\n",
					output.FormatAmount(invested, cfg.Currency),
					output.FormatAmount(planned, cfg.Currency))
			})
		})
	},
}

var investDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Realize an investment, recording the matching expense",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], investmentIDs(a))
			if err != nil {
				return err
			}
			tx, err := a.store.MarkInvestmentDone(ctx, id)
			if errors.Is(err, store.ErrAlreadyInvested) {
				output.Warning("%v", err)
				return nil
			}
			if err != nil {
				return err
			}
			return printJSONOr(tx, func() {
				output.Success("Invested; recorded %s", output.FormatTransaction(tx, cfg.Currency, models.IsTempID(tx.ID)))
			})
		})
	},
}

var investUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of an investment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		changed := changedFields(fs, "name", "amount", "planned", "kind")
		if len(changed) == 0 {
			err := fmt.Errorf("nothing to update")
			output.Error("%v", err)
			return err
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], investmentIDs(a))
			if err != nil {
				return err
			}
			patch := models.Row{}
			if changed["name"] {
				patch["name"], _ = fs.GetString("name")
			}
			if changed["amount"] {
				patch["valor_investido"] = investAmount.String()
			}
			if changed["planned"] {
				patch["data_planejada"] = investPlanned.Format(time.RFC3339)
			}
			if changed["kind"] {
				patch["kind"], _ = fs.GetString("kind")
			}
			if err := a.store.UpdateFields(ctx, models.TableInvestments, id, patch); err != nil {
				return err
			}
			output.Success("Updated %s", output.ShortID(id))
			return nil
		})
	},
}

var investDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an investment",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], investmentIDs(a))
			if err != nil {
				return err
			}
			if err := a.store.DeleteInvestment(ctx, id); err != nil {
				return err
			}
			output.Success("Deleted %s", output.ShortID(id))
			return nil
		})
	},
}

func investmentIDs(a *app) []string {
	invs := a.store.Investments()
	ids := make([]string, len(invs))
	for i, inv := range invs {
		ids[i] = inv.ID
	}
	return ids
}

func init() {
	rootCmd.AddCommand(investCmd)
	investCmd.AddCommand(investAddCmd, investListCmd, investDoneCmd, investUpdateCmd, investDeleteCmd)

	for _, c := range []*cobra.Command{investAddCmd, investUpdateCmd} {
		fs := c.Flags()
		amountFlag(fs, &investAmount, "amount to invest")
		dateFlag(fs, &investPlanned, "planned", "planned date (YYYY-MM-DD)")
		fs.StringP("kind", "k", "", "kind, e.g. bonds or stocks")
	}
	investUpdateCmd.Flags().String("name", "", "new name")
}
