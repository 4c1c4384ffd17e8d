package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/model"
)

func newAccountCommand(rt *runtime) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	var user string
	accountCmd.PersistentFlags().StringVar(&user, "user", "", "owner user ID (default import.default_user)")

	accountCmd.AddCommand(
		newAccountAddCommand(rt, &user),
		newAccountListCommand(rt, &user),
		newAccountSeedCommand(rt, &user),
		newAccountDeleteCommand(rt, &user),
	)
	return accountCmd
}

func newAccountAddCommand(rt *runtime, user *string) *cobra.Command {
	var typ, balance string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opening, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("balance %q: %w", balance, err)
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

			acct, err := a.Accounts.Create(cmd.Context(), userID, args[0], model.AccountType(strings.ToLower(typ)), opening)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (%s, %s)\n", acct.ID, acct.Name, acct.Balance.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", string(model.AccountTypeChecking), "account type")
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")

	return cmd
}

func newAccountListCommand(rt *runtime, user *string) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with decrypted balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := model.AccountType(strings.ToLower(typ))
			if typ != "" && !filter.Valid() {
				return fmt.Errorf("%w: %q", accounts.ErrInvalidType, typ)
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

			var all []model.Account
			if typ != "" {
				all, err = a.Accounts.ByType(cmd.Context(), userID, filter)
			} else {
				all, err = a.Accounts.All(cmd.Context(), userID)
			}
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE")
			for _, acct := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", acct.ID, acct.Name, acct.Type, acct.Balance.StringFixed(2))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "only list accounts of this type")

	return cmd
}

func newAccountDeleteCommand(rt *runtime, user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account with no pending balance updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("account %q: %w", args[0], err)
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
			if err := a.Accounts.Delete(cmd.Context(), userID, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %s\n", id)
			return nil
		},
	}
}

func newAccountSeedCommand(rt *runtime, user *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the starter accounts, or those listed in a name,type,balance CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := accounts.DefaultAccounts()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening %s: %w", file, err)
				}
				seed, err = accounts.ReadAccounts(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
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

			for _, s := range seed {
				acct, err := a.Accounts.Create(cmd.Context(), userID, s.Name, s.Type, s.Balance)
				if err != nil {
					return fmt.Errorf("creating %s: %w", s.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (%s, %s)\n", acct.ID, acct.Name, acct.Balance.StringFixed(2))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "seed CSV (default: built-in starter accounts)")

	return cmd
}
