package main

import (
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/vis2attr/internal/decision"
	"github.com/sells-group/vis2attr/internal/export"
	"github.com/sells-group/vis2attr/internal/report"
)

var (
	reportFormat    string
	reportThreshold float64
)

var reportCmd = &cobra.Command{
	Use:         "report <predictions-file>",
	Short:       "Summarize a predictions file",
	Args:        cobra.ExactArgs(1),
	Annotations: withMode("report"),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := report.Format(reportFormat)
		if !slices.Contains(report.Formats, format) {
			return eris.Errorf("report: unknown format %q", reportFormat)
		}

		rows, fields, err := export.ReadFile(args[0])
		if err != nil {
			return err
		}

		var threshold *float64
		if cmd.Flags().Changed("threshold") {
			if reportThreshold < 0 || reportThreshold > 1 {
				return eris.Errorf("report: --threshold %v outside [0,1]", reportThreshold)
			}
			th, err := decision.ParseThresholds(cfg.Thresholds)
			if err != nil {
				return err
			}
			rows = report.Recompute(rows, fields, th.WithDefault(reportThreshold))
			threshold = &reportThreshold
		}

		s := report.Summarize(rows, fields)
		s.Threshold = threshold
		return report.Write(cmd.OutOrStdout(), s, format)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatTable), "output format: table, summary, json or yaml")
	reportCmd.Flags().Float64Var(&reportThreshold, "threshold", 0, "recompute acceptance with this default threshold")
	rootCmd.AddCommand(reportCmd)
}
