package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/target/jobsync/internal/bootstrap"
	"github.com/target/jobsync/internal/data"
	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/export"
	"github.com/target/jobsync/internal/util"
)

const defaultExportTimeout = 30 * time.Minute

type runOnceOptions struct {
	Timeout   time.Duration
	Migrate   bool
	ShowStale bool
}

func parseRunOnceFlags(args []string) (runOnceOptions, error) {
	fs := newFlagSet("run-once")
	var opts runOnceOptions
	fs.DurationVar(&opts.Timeout, "timeout", 0, "Bound on the pass; 0 uses SYNC_PASS_TIMEOUT")
	fs.BoolVar(&opts.Migrate, "migrate", false, "Apply database migrations before the pass")
	fs.BoolVar(&opts.ShowStale, "show-stale", false, "List every stale identifier that was swept")
	if err := fs.Parse(args); err != nil {
		return runOnceOptions{}, err
	}
	if opts.Timeout < 0 {
		return runOnceOptions{}, errors.New("--timeout must not be negative")
	}
	return opts, nil
}

func runOnce(cmdCtx *commandContext, args []string) error {
	opts, err := parseRunOnceFlags(args)
	if err != nil {
		return err
	}
	cfg := cmdCtx.Config
	if err := bootstrap.ValidateSyncConfig(&cfg); err != nil {
		return err
	}
	if opts.Timeout > 0 {
		cfg.Sync.PassTimeout = opts.Timeout
	}

	ctx, cancel := signalContext(cmdCtx.Ctx, 0)
	defer cancel()

	infra, err := bootstrap.ConnectInfra(ctx, &cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := infra.Close(cmdCtx.Ctx); closeErr != nil {
			cmdCtx.Logger.Warn("infra close failed", "error", closeErr)
		}
	}()

	if opts.Migrate {
		if err := bootstrap.RunMigrations(ctx, infra.DB, cmdCtx.Logger); err != nil {
			return err
		}
	}

	svcs, err := bootstrap.NewSyncServices(&bootstrap.ServiceDeps{Config: &cfg, Infra: infra, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svcs.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("metrics close failed", "error", closeErr)
		}
	}()

	report, runErr := svcs.Runner.RunOnce(ctx)
	if report != nil {
		if err := printPassReport(cmdCtx.Stdout, report, opts.ShowStale); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func printPassReport(w io.Writer, r *model.PassReport, showStale bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]any{
		{"pass", r.PassID},
		{"phase", r.Phase},
		{"resumed", r.Resumed},
		{"duration", util.FormatDuration(r.Duration())},
		{"bootstrapped", r.Bootstrapped},
		{"pages", r.Pages},
		{"listings", r.Listings},
		{"new listings", r.NewListings},
		{"written", r.Written},
		{"stale", len(r.Stale)},
		{"stale share", util.FormatPercent(len(r.Stale), r.Bootstrapped)},
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%v\n", row[0], row[1]); err != nil {
			return err
		}
	}
	for _, store := range sortedKeys(r.WriteFailures) {
		if err := writef(tw, "write failures (%s)\t%d\n", store, r.WriteFailures[store]); err != nil {
			return err
		}
	}
	for _, store := range sortedKeys(r.Deleted) {
		if err := writef(tw, "deleted (%s)\t%d\n", store, r.Deleted[store]); err != nil {
			return err
		}
	}
	for _, store := range sortedKeys(r.DeleteErrors) {
		if err := writef(tw, "delete error (%s)\t%v\n", store, r.DeleteErrors[store]); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !showStale || len(r.Stale) == 0 {
		return nil
	}
	if err := writeln(w, "\nStale identifiers:"); err != nil {
		return err
	}
	for _, id := range r.Stale {
		if err := writef(w, "  %s\n", id); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type exportOptions struct {
	Dir            string
	RelationalFile string
	DocumentFile   string
	Timeout        time.Duration
}

func parseExportFlags(args []string) (exportOptions, error) {
	fs := newFlagSet("export")
	opts := exportOptions{Timeout: defaultExportTimeout}
	fs.StringVar(&opts.Dir, "dir", ".", "Directory the CSV files are written to")
	fs.StringVar(&opts.RelationalFile, "relational-file", export.DefaultRelationalFile, "File name for the relational table")
	fs.StringVar(&opts.DocumentFile, "document-file", export.DefaultDocumentFile, "File name for the document collection")
	fs.DurationVar(&opts.Timeout, "timeout", defaultExportTimeout, "Maximum duration for the export")
	if err := fs.Parse(args); err != nil {
		return exportOptions{}, err
	}
	if opts.Timeout <= 0 {
		return exportOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runExport(cmdCtx *commandContext, args []string) error {
	opts, err := parseExportFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	docs, err := bootstrap.ConnectDocStore(ctx, bootstrap.DocStoreOptions{
		Config: &cmdCtx.Config,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := docs.Close(cmdCtx.Ctx); closeErr != nil {
			cmdCtx.Logger.Warn("document store close failed", "error", closeErr)
		}
	}()

	listings := data.NewListingRepo(db, data.ListingRepoOptions{})
	res, err := export.ToFiles(ctx, export.FileOptions{
		Dir:            opts.Dir,
		RelationalFile: opts.RelationalFile,
		DocumentFile:   opts.DocumentFile,
		Columns:        listings.Columns(),
		Relational:     listings,
		Documents:      docs.Exporter,
		Logger:         cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	return writef(cmdCtx.Stdout, "Wrote %d rows to %s and %d documents to %s\n",
		res.RelationalRows, res.RelationalPath, res.DocumentRows, res.DocumentPath)
}
