package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pennywise-dev/pennywise/internal/app"
	"github.com/pennywise-dev/pennywise/internal/importer"
	"github.com/pennywise-dev/pennywise/internal/ingest"
	"github.com/pennywise-dev/pennywise/internal/ingestlog"
)

type importOptions struct {
	scan         bool
	format       string
	mapping      string
	skipHeader   bool
	account      string
	user         string
	applyBalance bool
}

// importPlan is how one file is read and where its rows go.
type importPlan struct {
	parser       importer.Parser
	accountID    *uuid.UUID
	applyBalance bool
}

func newImportCommand(rt *runtime) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import bank CSV files",
		Long: `Import bank CSV files. With --scan, every CSV in the import directory is
read and moved to its processed/ subdirectory once all rows are stored.

Without --mapping the parser comes from the first matching entry under
sources: in pennywise.yaml, then from --format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.scan && len(args) == 0 {
				return errors.New("pass one or more files, or --scan")
			}
			if opts.scan && len(args) > 0 {
				return errors.New("--scan does not take file arguments")
			}
			opts.format = strings.ToLower(opts.format)
			return runImport(cmd, rt, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.scan, "scan", false, "import every CSV in the import directory")
	cmd.Flags().StringVar(&opts.format, "format", "heuristic", "parser when no mapping or source applies (heuristic, chase)")
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "column mapping, e.g. date=0,description=1,amount=2")
	cmd.Flags().BoolVar(&opts.skipHeader, "skip-header", false, "skip the first row (mapped imports)")
	cmd.Flags().StringVar(&opts.account, "account", "", "destination account ID")
	cmd.Flags().StringVar(&opts.user, "user", "", "owner user ID (default import.default_user)")
	cmd.Flags().BoolVar(&opts.applyBalance, "apply-balance", false, "add each imported amount to the account balance")

	return cmd
}

func runImport(cmd *cobra.Command, rt *runtime, files []string, opts importOptions) error {
	ctx := cmd.Context()
	a, err := rt.load(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeApp(cmd, a)

	userID, err := resolveUser(opts.user, a.Config)
	if err != nil {
		return err
	}

	root, err := rt.root()
	if err != nil {
		return err
	}
	importDir := filepath.Join(root, a.Config.Import.Dir)

	if opts.scan {
		found, err := importer.Scan(importDir)
		if err != nil {
			return err
		}
		for _, f := range found {
			files = append(files, f.Path)
		}
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No files to import.")
		return nil
	}

	for _, path := range files {
		name := filepath.Base(path)
		plan, err := planImport(a, path, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		rep, err := importFile(ctx, a, userID, path, plan)
		if rep != nil {
			if logErr := ingestlog.Append(root, ingestlog.FromReport(rep, name, time.Now().UTC())); logErr != nil {
				a.Log.Error().Err(logErr).Msg("writing import log")
			}
			fmt.Fprintf(out, "%s: %s\n", name, rep.Summary())
		}
		if err != nil {
			return fmt.Errorf("importing %s: %w", name, err)
		}

		if opts.scan {
			if rep.Failed > 0 {
				fmt.Fprintf(out, "%s: left in %s for retry\n", name, a.Config.Import.Dir)
				continue
			}
			if err := importer.MarkProcessed(importDir, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func importFile(ctx context.Context, a *app.App, userID uuid.UUID, path string, plan importPlan) (*ingest.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return a.Ingestor.Ingest(ctx, ingest.Upload{
		UserID:       userID,
		Filename:     filepath.Base(path),
		Source:       f,
		Parser:       plan.parser,
		AccountID:    plan.accountID,
		ApplyBalance: plan.applyBalance,
	})
}

// planImport picks the parser and destination for path. Flags win over a
// matching configured source.
func planImport(a *app.App, path string, opts importOptions) (importPlan, error) {
	var plan importPlan
	category := a.Config.Import.DefaultCategory
	src, hasSource := a.Config.SourceFor(path)

	switch {
	case opts.mapping != "":
		p, err := mappedParser(opts.mapping, opts.skipHeader, category)
		if err != nil {
			return plan, err
		}
		plan.parser = p
	case hasSource && src.Format == "mapped":
		p, err := mappedParser(src.Mapping, src.SkipHeader || opts.skipHeader, category)
		if err != nil {
			return plan, fmt.Errorf("source %q: %w", src.Name, err)
		}
		plan.parser = p
	case hasSource:
		plan.parser = a.Parsers.Get(src.Format)
		if plan.parser == nil {
			return plan, fmt.Errorf("source %q: unknown format %q (have %v)", src.Name, src.Format, a.Parsers.Formats())
		}
	default:
		plan.parser = a.Parsers.Get(opts.format)
		if plan.parser == nil {
			return plan, fmt.Errorf("unknown format %q (have %v)", opts.format, a.Parsers.Formats())
		}
	}

	account := opts.account
	if account == "" && hasSource {
		account = src.AccountID
	}
	if account != "" {
		id, err := uuid.Parse(account)
		if err != nil {
			return plan, fmt.Errorf("account %q: %w", account, err)
		}
		plan.accountID = &id
	}

	plan.applyBalance = opts.applyBalance ||
		(plan.accountID != nil && (a.Config.Import.ApplyBalance || (hasSource && src.ApplyBalance)))
	return plan, nil
}

func mappedParser(mapping string, skipHeader bool, category string) (*importer.MappedParser, error) {
	m, err := importer.ParseColumnMapping(mapping)
	if err != nil {
		return nil, fmt.Errorf("mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("mapping: %w", err)
	}
	return &importer.MappedParser{Mapping: m, SkipHeader: skipHeader, Category: category}, nil
}
