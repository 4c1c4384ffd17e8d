package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/app"
	"github.com/pennywise-dev/pennywise/internal/buildinfo"
	"github.com/pennywise-dev/pennywise/internal/config"
	"github.com/pennywise-dev/pennywise/internal/logger"
	"github.com/pennywise-dev/pennywise/internal/store"
)

// runtime carries the persistent flags shared by subcommands.
type runtime struct {
	dir     string
	envFile string

	// store replaces the configured driver when set.
	store store.Store
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&runtime{})
}

func newRootCommand(rt *runtime) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "pennywise",
		Short:   "Encrypted personal finance ledger with bank CSV import",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&rt.dir, "dir", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&rt.envFile, "env-file", "", "dotenv file to load (default <dir>/.env)")

	rootCmd.AddCommand(
		newInitCommand(),
		newKeygenCommand(),
		newPreviewCommand(),
		newImportCommand(rt),
		newServeCommand(rt),
		newReconcileCommand(rt),
		newAccountCommand(rt),
		newBudgetCommand(rt),
	)

	return rootCmd
}

func (rt *runtime) root() (string, error) {
	abs, err := filepath.Abs(rt.dir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

// load reads .env and pennywise.yaml from the project directory and builds
// the App. A missing pennywise.yaml means defaults.
func (rt *runtime) load(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	root, err := rt.root()
	if err != nil {
		return nil, err
	}

	envFile := rt.envFile
	if envFile == "" {
		envFile = filepath.Join(root, ".env")
	}
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}

	a, err := app.New(ctx, app.Options{
		Config:  cfg,
		Secrets: config.SecretsFromEnv(),
		Log:     log,
		Store:   rt.store,
	})
	if err != nil {
		return nil, err
	}
	if rt.store == nil && cfg.Store.Driver == config.DriverMemory {
		log.Warn().Msg("memory store: nothing is kept after this command exits")
	}
	return a, nil
}

// resolveUser returns the --user flag value, falling back to
// import.default_user.
func resolveUser(flag string, cfg *config.Config) (uuid.UUID, error) {
	raw := flag
	if raw == "" {
		raw = cfg.Import.DefaultUser
	}
	if raw == "" {
		return uuid.Nil, errors.New("no user: pass --user or set import.default_user")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user %q: %w", raw, err)
	}
	return id, nil
}

func closeApp(cmd *cobra.Command, a *app.App) {
	if err := a.Close(context.WithoutCancel(cmd.Context())); err != nil {
		a.Log.Error().Err(err).Msg("closing store")
	}
}
