package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/goes-mirror/internal/config"
	"github.com/yuya-takeyama/goes-mirror/internal/report"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
	"github.com/yuya-takeyama/goes-mirror/pkg/migrator"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [ROOT]",
		Short: "Move downloaded files into the mirror layout",
		Long: `migrate walks ROOT (or --from) and moves every archive file whose name can be
parsed to its canonical location under ROOT. Files that cannot be parsed are
left untouched, and a file is never moved onto an existing one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMigrate,
	}

	f := cmd.Flags()
	f.String(config.KeyRoot, "", "Local mirror root")
	f.String(config.KeyFrom, "", "Directory to collect files from (default: the root)")
	f.StringSlice(config.KeyExcludes, nil, "Exclude patterns relative to the walked directory (multiple allowed)")
	f.Bool(config.KeyDryRun, false, "Shows operations without executing")
	f.String(config.KeyResultJSONFile, "", "Path to output result as JSON file")

	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadMigrate(v)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	syncLogger := &logger.SyncLogger{
		IsDryRun: cfg.DryRun,
		IsQuiet:  cfg.Quiet,
		Logger:   newLogrus(cfg.LogLevel),
	}

	fs := afero.NewOsFs()
	rep, err := migrator.NewMigrator(fs, syncLogger).Migrate(ctx, migrator.Options{
		Root:     cfg.Root,
		Source:   cfg.Source,
		DryRun:   cfg.DryRun,
		Excludes: cfg.Excludes,
	})
	if rep == nil {
		return err
	}

	syncLogger.MigrationSummary(rep.Moved(), rep.Conflicts(), len(rep.Unrecognized))

	result := report.NewMigrationResult(rep)
	if cfg.ResultJSONFile != "" {
		if werr := report.WriteJSON(fs, cfg.ResultJSONFile, result); werr != nil {
			return fmt.Errorf("failed to write result JSON: %w", werr)
		}
	}
	if err != nil {
		return err
	}

	if result.Summary.Failed > 0 {
		return fmt.Errorf("%d moves failed", result.Summary.Failed)
	}
	return nil
}
