package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/config"
	"github.com/pennywise-dev/pennywise/internal/importer"
)

func newInitCommand() *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new pennywise project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.OutOrStdout(), absDir, driver)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", config.DriverMemory, "store driver: memory, postgres or mongo")

	return cmd
}

func runInit(out io.Writer, dir, driver string) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	cfg := config.Default()
	cfg.Store.Driver = driver
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create directory structure.
	importDir := cfg.Import.Dir
	dirs := []string{
		"accounts",
		"logs",
		importDir,
		filepath.Join(importDir, importer.ProcessedDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Starter accounts, loaded with `pennywise account seed --file`.
	f, err := os.Create(filepath.Join(dir, "accounts", "accounts.csv"))
	if err != nil {
		return fmt.Errorf("creating accounts file: %w", err)
	}
	if err := accounts.WriteAccounts(f, accounts.DefaultAccounts()); err != nil {
		f.Close()
		return fmt.Errorf("writing accounts: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing accounts: %w", err)
	}

	envExample := config.EnvEncryptionKey + "=\n" + config.EnvDatabaseURL + "=\n" + config.EnvMongoURI + "=\n"
	if err := os.WriteFile(filepath.Join(dir, ".env.example"), []byte(envExample), 0o644); err != nil {
		return fmt.Errorf("writing .env.example: %w", err)
	}

	gitignore := ".env\nlogs/\n" + importDir + "/**/*.csv\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, importDir, ".gitkeep"), []byte{}, 0o644); err != nil {
		return fmt.Errorf("writing .gitkeep: %w", err)
	}

	fmt.Fprintf(out, "Initialized pennywise project at %s\n", dir)
	fmt.Fprintf(out, "Run `pennywise keygen` and put the key in %s\n", filepath.Join(dir, ".env"))
	return nil
}
