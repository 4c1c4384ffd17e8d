package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/app"
	"github.com/pennywise-dev/pennywise/internal/budgets"
	"github.com/pennywise-dev/pennywise/internal/model"
)

func newBudgetCommand(rt *runtime) *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage spending budgets",
	}

	var user string
	budgetCmd.PersistentFlags().StringVar(&user, "user", "", "owner user ID (default import.default_user)")

	budgetCmd.AddCommand(
		newBudgetAddCommand(rt, &user),
		newBudgetListCommand(rt, &user),
		newBudgetSpendCommand(rt, &user),
		newBudgetDeleteCommand(rt, &user),
	)
	return budgetCmd
}

type budgetFlags struct {
	amount   string
	category string
	account  string
	start    string
	end      string
}

func (f budgetFlags) budget(name string) (model.Budget, error) {
	b := model.Budget{Name: name, Category: f.category}
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return b, fmt.Errorf("amount %q: %w", f.amount, err)
	}
	b.Amount = amount
	if f.account != "" {
		id, err := uuid.Parse(f.account)
		if err != nil {
			return b, fmt.Errorf("account %q: %w", f.account, err)
		}
		b.AccountID = &id
	}
	if b.StartDate, err = flagDate("start", f.start); err != nil {
		return b, err
	}
	if b.EndDate, err = flagDate("end", f.end); err != nil {
		return b, err
	}
	return b, nil
}

func flagDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s %q: want YYYY-MM-DD", name, v)
	}
	return t, nil
}

func newBudgetAddCommand(rt *runtime, user *string) *cobra.Command {
	var flags budgetFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := flags.budget(args[0])
			if err != nil {
				return err
			}

			a, err := rt.load(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			userID, err := resolveUser(*user, a.Config)
			if err != nil {
				return err
			}

			created, err := a.Budgets.Create(cmd.Context(), userID, b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created budget %s (%s, %s)\n", created.ID, created.Name, created.Amount.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.amount, "amount", "0", "budgeted amount")
	cmd.Flags().StringVar(&flags.category, "category", "", "category (default Uncategorized)")
	cmd.Flags().StringVar(&flags.account, "account", "", "account ID the budget tracks")
	cmd.Flags().StringVar(&flags.start, "start", "", "start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.end, "end", "", "end date, YYYY-MM-DD")

	return cmd
}

func newBudgetListCommand(rt *runtime, user *string) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List budgets with spent and remaining amounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var accountID *uuid.UUID
			if account != "" {
				id, err := uuid.Parse(account)
				if err != nil {
					return fmt.Errorf("account %q: %w", account, err)
				}
				accountID = &id
			}

			a, err := rt.load(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			userID, err := resolveUser(*user, a.Config)
			if err != nil {
				return err
			}

			list, err := a.Budgets.List(cmd.Context(), userID, accountID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No budgets.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tAMOUNT\tSPENT\tREMAINING\tPERIOD")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.Category,
					b.Amount.StringFixed(2), b.Spent.StringFixed(2), b.Remaining().StringFixed(2), period(b))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "only budgets for this account ID")

	return cmd
}

func period(b model.Budget) string {
	start, end := model.FormatDate(b.StartDate), model.FormatDate(b.EndDate)
	if start == "" && end == "" {
		return "-"
	}
	return start + ".." + end
}

func newBudgetSpendCommand(rt *runtime, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "spend <id> <amount>",
		Short: "Add to a budget's spent amount; a negative amount gives some back",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("budget %q: %w", args[0], err)
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}

			return withBudgets(cmd, rt, *user, func(a *app.App, userID uuid.UUID) error {
				b, err := a.Budgets.Update(cmd.Context(), userID, id, budgets.Update{Contribute: &amount})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Budget %s: %s spent, %s remaining\n", b.Name, b.Spent.StringFixed(2), b.Remaining().StringFixed(2))
				return nil
			})
		},
	}
}

func newBudgetDeleteCommand(rt *runtime, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("budget %q: %w", args[0], err)
			}

			return withBudgets(cmd, rt, *user, func(a *app.App, userID uuid.UUID) error {
				if err := a.Budgets.Delete(cmd.Context(), userID, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted budget %s\n", id)
				return nil
			})
		},
	}
}

func withBudgets(cmd *cobra.Command, rt *runtime, user string, fn func(*app.App, uuid.UUID) error) error {
	a, err := rt.load(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	userID, err := resolveUser(user, a.Config)
	if err != nil {
		return err
	}
	return fn(a, userID)
}
