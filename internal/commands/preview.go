package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/importer"
)

func newPreviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <file>",
		Short: "Show the first row of a CSV so a column mapping can be chosen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			cols, err := importer.Preview(f)
			if err != nil {
				return fmt.Errorf("previewing %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			for _, c := range cols {
				fmt.Fprintf(out, "%d\t%s\n", c.Index, c.Value)
			}
			fmt.Fprintf(out, "\nfields: %v\n", importer.Fields)
			fmt.Fprintln(out, "example: --mapping date=0,description=1,amount=2")
			return nil
		},
	}
}
