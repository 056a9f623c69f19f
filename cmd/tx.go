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

var txCmd = &cobra.Command{
	Use:     "tx",
	Aliases: []string{"transaction"},
	Short:   "Manage income and expense transactions",
	GroupID: "records",
}

var (
	txAmount decimal.Decimal
	txDate   time.Time
)

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	Example: `  tally tx add --amount 42.90 --category food
  tally tx add --income --amount 5000 --category salary --date 2026-03-05
  tally tx add -i`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tx := models.Transaction{
			Type:   models.TypeExpense,
			Amount: txAmount,
			Date:   txDate,
		}
		if income, _ := cmd.Flags().GetBool("income"); income {
			tx.Type = models.TypeIncome
		}
		tx.Category, _ = cmd.Flags().GetString("category")
		tx.Description, _ = cmd.Flags().GetString("description")
		if tx.Date.IsZero() {
			tx.Date = today()
		}

		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if err := runTransactionForm(&tx); err != nil {
				return err
			}
		}
		if err := tx.Validate(); err != nil {
			output.Error("%v", err)
			return err
		}

		return withApp(true, func(ctx context.Context, a *app) error {
			added, err := a.store.AddTransaction(ctx, tx)
			if err != nil {
				return err
			}
			return printJSONOr(added, func() {
				output.Success("Recorded %s", output.FormatTransaction(added, cfg.Currency, models.IsTempID(added.ID)))
			})
		})
	},
}

var txListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List transactions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		category, _ := cmd.Flags().GetString("category")
		return withApp(false, func(ctx context.Context, a *app) error {
			var txs []models.Transaction
			for _, tx := range a.store.Transactions() {
				if category != "" && tx.Category != category {
					continue
				}
				txs = append(txs, tx)
			}
			if limit > 0 && len(txs) > limit {
				txs = txs[:limit]
			}
			return printJSONOr(txs, func() {
				pending := a.store.PendingIDs()
				var income, expense decimal.Decimal
				for _, tx := range txs {
					fmt.Println(output.FormatTransaction(tx, cfg.Currency, pending[tx.ID]))
					if tx.Type == models.TypeIncome {
						income = income.Add(tx.Amount)
					} else {
						expense = expense.Add(tx.Amount)
					}
				}
				if len(txs) == 0 {
					output.Info("No transactions")
					return
				}
				fmt.Printf("\nIncome %s  Expenses %s  Balance %s\n",
					output.FormatAmount(income, cfg.Currency),
					output.FormatAmount(expense, cfg.Currency),
					output.FormatAmount(income.Sub(expense), cfg.Currency))
			})
		})
	},
}

var txUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		changed := changedFields(fs, "amount", "category", "description", "date", "income", "expense")
		if len(changed) == 0 {
			err := fmt.Errorf("nothing to update")
			output.Error("%v", err)
			return err
		}
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], transactionIDs(a))
			if err != nil {
				return err
			}
			patch := models.Row{}
			if changed["amount"] {
				patch["amount"] = txAmount.String()
			}
			if changed["category"] {
				patch["category"], _ = fs.GetString("category")
			}
			if changed["description"] {
				patch["description"], _ = fs.GetString("description")
			}
			if changed["date"] {
				patch["date"] = txDate.Format(time.RFC3339)
			}
			if changed["income"] {
				patch["type"] = string(models.TypeIncome)
			}
			if changed["expense"] {
				patch["type"] = string(models.TypeExpense)
			}
			if err := a.store.UpdateFields(ctx, models.TableTransactions, id, patch); err != nil {
				return err
			}
			output.Success("Updated %s", output.ShortID(id))
			return nil
		})
	},
}

var txDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a transaction",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(true, func(ctx context.Context, a *app) error {
			id, err := resolveID(args[0], transactionIDs(a))
			if err != nil {
				return err
			}
			if err := a.store.DeleteTransaction(ctx, id); err != nil {
				return err
			}
			output.Success("Deleted %s", output.ShortID(id))
			return nil
		})
	},
}

func transactionIDs(a *app) []string {
	txs := a.store.Transactions()
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func init() {
	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txAddCmd, txListCmd, txUpdateCmd, txDeleteCmd)

	for _, c := range []*cobra.Command{txAddCmd, txUpdateCmd} {
		fs := c.Flags()
		amountFlag(fs, &txAmount, "amount (positive)")
		dateFlag(fs, &txDate, "date", "transaction date (YYYY-MM-DD, today, yesterday)")
		fs.StringP("category", "c", "", "category")
		fs.StringP("description", "d", "", "free-text description")
		fs.Bool("income", false, "money coming in")
	}
	txUpdateCmd.Flags().Bool("expense", false, "money going out")
	txAddCmd.Flags().BoolP("interactive", "i", false, "fill the transaction in a form")

	txListCmd.Flags().IntP("limit", "n", 0, "show at most n transactions")
	txListCmd.Flags().StringP("category", "c", "", "only this category")
}
