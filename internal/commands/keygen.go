package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/config"
	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
)

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new field encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := fieldcrypt.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", config.EnvEncryptionKey, key)
			return nil
		},
	}
}
