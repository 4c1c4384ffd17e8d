package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/server"
)

func newServeCommand(rt *runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := rt.load(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeApp(cmd, a)

			if addr != "" {
				a.Config.Server.Addr = addr
			}
			if a.Config.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			return server.Run(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")

	return cmd
}
