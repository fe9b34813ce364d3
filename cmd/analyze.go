package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/export"
	"github.com/sells-group/vis2attr/internal/ingest"
	"github.com/sells-group/vis2attr/internal/monitoring"
	"github.com/sells-group/vis2attr/internal/pipeline"
	"github.com/sells-group/vis2attr/internal/report"
)

var analyzeWatchInterval time.Duration

var analyzeCmd = &cobra.Command{
	Use:         "analyze <path>...",
	Short:       "Analyze product photos and write a predictions file",
	Long:        "Each path is an image file, a directory of images (one item) or a directory of item directories.",
	Args:        cobra.MinimumNArgs(1),
	Annotations: withMode("analyze"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAnalyze(ctx, cmd, args)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringP("output", "o", "", "predictions file (default from config)")
	f.String("format", "", "predictions format: csv, xlsx, jsonl or parquet (default from config)")
	f.String("provider", "", "provider override: anthropic, mistral or stub")
	f.String("model", "", "model override")
	f.String("schema", "", "schema file override")
	f.Int("concurrency", 0, "items processed in parallel (default from config)")
	f.DurationVar(&analyzeWatchInterval, "progress-interval", 30*time.Second, "progress log interval")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, cmd *cobra.Command, paths []string) error {
	fs := ingest.NewFileSystem(ingest.Options{
		MaxImagesPerItem: cfg.IO.MaxImagesPerItem,
		MaxResolution:    cfg.IO.MaxResolution,
		SupportedFormats: cfg.IO.SupportedFormats,
		StripEXIF:        cfg.IO.StripEXIF,
	})
	var sources []string
	for _, p := range paths {
		found, err := fs.Discover(p)
		if err != nil {
			return err
		}
		sources = append(sources, found...)
	}
	if len(sources) == 0 {
		return apperr.Errorf(apperr.KindIngest, "analyze: no items found under %v", paths)
	}

	metrics := monitoring.NewAccumulator()
	p, err := pipeline.FromConfig(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go monitoring.Watch(watchCtx, metrics, analyzeWatchInterval, monitoring.DefaultAlertThresholds())

	results, err := pipeline.NewBatch(p, cfg.Batch.Concurrency).Run(ctx, sources)
	if err != nil {
		return err
	}
	stopWatch()

	fields := p.Schema().Fields()
	rows := export.FromResults(results, fields)
	if err := export.WriteFile(cfg.Output.Path, export.Format(cfg.Output.Format), fields, rows); err != nil {
		return eris.Wrap(err, "analyze: write predictions")
	}

	snap := metrics.Snapshot()
	zap.L().Info("analyze: predictions written",
		zap.String("path", cfg.Output.Path),
		zap.Int("items", len(rows)),
		zap.Float64("cost_usd", snap.CostUSD),
		zap.Int64("input_tokens", snap.InputTokens),
		zap.Int64("output_tokens", snap.OutputTokens),
	)
	return report.Write(cmd.OutOrStdout(), report.Summarize(rows, fields), report.FormatSummary)
}
