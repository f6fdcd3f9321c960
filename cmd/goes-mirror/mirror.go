package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/goes-mirror/internal/config"
	"github.com/yuya-takeyama/goes-mirror/internal/report"
	"github.com/yuya-takeyama/goes-mirror/pkg/executor"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
	"github.com/yuya-takeyama/goes-mirror/pkg/mirror"
	"github.com/yuya-takeyama/goes-mirror/pkg/planner"
	"github.com/yuya-takeyama/goes-mirror/pkg/s3client"
)

func newMirrorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror [ROOT]",
		Short: "Download products for a time range",
		Example: `  goes-mirror mirror /data/goes --products ABI-L1b-RadF --platforms 16 \
    --start 2020-04-12 --end 2020-04-13 --include '*C09_*'`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMirror,
	}

	f := cmd.Flags()
	f.String(config.KeyRoot, "", "Local mirror root")
	f.StringSliceP(config.KeyProducts, "p", nil, "Products to mirror, e.g. ABI-L1b-RadF (multiple allowed)")
	f.StringSlice(config.KeyPlatforms, nil, "Satellites to mirror, e.g. 16 (default: all known)")
	f.String(config.KeyStart, "", "Start of the time range, inclusive (2006-01-02, 2006-01-02T15 or RFC3339)")
	f.String(config.KeyEnd, "", "End of the time range, exclusive (default: start plus one day)")
	f.StringSlice(config.KeyIncludes, nil, "Only download file names matching these patterns (multiple allowed)")
	f.StringSlice(config.KeyExcludes, nil, "Skip file names matching these patterns (multiple allowed)")
	f.Bool(config.KeyOverwrite, false, "Download files even when the local size matches")
	f.Bool(config.KeyDryRun, false, "Shows operations without executing")
	f.Int(config.KeyConcurrency, executor.DefaultConcurrency, "Number of concurrent downloads")
	f.String(config.KeyRegion, s3client.DefaultRegion, "AWS region of the archive buckets")
	f.Int(config.KeyMaxRetries, s3client.DefaultMaxRetries, "Retries for throttled or failed store requests")
	f.Duration(config.KeyRetryBaseDelay, s3client.DefaultBaseDelay, "Initial retry delay")
	f.Duration(config.KeyRetryMaxDelay, s3client.DefaultMaxDelay, "Maximum retry delay")
	f.Int64(config.KeyMultipartThreshold, executor.DefaultMultipartThreshold, "Object size in bytes from which downloads use ranged parts (0 disables)")
	f.String(config.KeyPlanJSONFile, "", "Path to output plan as JSON file")
	f.String(config.KeyResultJSONFile, "", "Path to output result as JSON file")

	return cmd
}

func runMirror(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadMirror(v)
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

	awsCfg, err := s3client.LoadAnonymousConfig(ctx, cfg.Region)
	if err != nil {
		return err
	}
	client := s3client.NewAWSClient(awsCfg, cfg.Retry)

	fs := afero.NewOsFs()
	m := mirror.New(client, fs, syncLogger, executor.Options{
		Concurrency:        cfg.Concurrency,
		MultipartThreshold: cfg.MultipartThreshold,
	})

	filter, err := cfg.NameFilter()
	if err != nil {
		return err
	}
	req := mirror.Request{
		LocalRoot:  cfg.Root,
		Products:   cfg.Products,
		Start:      cfg.Start,
		End:        cfg.End,
		Platforms:  cfg.Platforms,
		NameFilter: filter,
		Overwrite:  cfg.Overwrite,
		DryRun:     cfg.DryRun,
	}

	syncResult := report.NewSyncResult()
	var summary *mirror.Summary

	if cfg.PlanJSONFile != "" {
		var tasks []planner.Task
		tasks, err = m.Plan(ctx, req)
		if err != nil {
			return err
		}
		if err := report.WriteJSON(fs, cfg.PlanJSONFile, report.NewPlanResult(tasks)); err != nil {
			return fmt.Errorf("failed to write plan JSON: %w", err)
		}
		if cfg.DryRun {
			summary = m.Preview(tasks)
		} else {
			summary, err = m.Execute(ctx, tasks, syncResult.Add)
		}
	} else {
		summary, err = m.Run(ctx, req, syncResult.Add)
	}
	if summary == nil {
		return err
	}

	syncLogger.Summary(summary.Stats())

	if cfg.ResultJSONFile != "" && !cfg.DryRun {
		if werr := report.WriteJSON(fs, cfg.ResultJSONFile, syncResult); werr != nil {
			return fmt.Errorf("failed to write result JSON: %w", werr)
		}
	}
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d downloads failed, re-run to retry them", summary.Failed)
	}
	return nil
}
