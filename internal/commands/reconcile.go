package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCommand(rt *runtime) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply account balances still pending from earlier imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.load(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			userID, err := resolveUser(user, a.Config)
			if err != nil {
				return err
			}

			rep, err := a.Ingestor.Reconcile(cmd.Context(), userID)
			if rep != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d pending, %d applied, %d failed\n", rep.Pending, rep.Applied, rep.Failed)
				for _, e := range rep.Errors {
					fmt.Fprintf(out, "  %v\n", e)
				}
			}
			if err != nil {
				return err
			}
			if rep.Failed > 0 {
				return fmt.Errorf("%d transactions still pending", rep.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "owner user ID (default import.default_user)")

	return cmd
}
