package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Format names a report rendering.
type Format string

// Report formats.
const (
	FormatTable   Format = "table"
	FormatSummary Format = "summary"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
)

// Formats lists the accepted report formats.
var Formats = []Format{FormatTable, FormatSummary, FormatJSON, FormatYAML}

// Write renders s to w.
func Write(w io.Writer, s Summary, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(s), "report: encode json")
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return eris.Wrap(enc.Close(), "report: close yaml encoder")
	case FormatSummary:
		return writeSummary(w, s)
	case FormatTable, "":
		return writeTable(w, s)
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
}

func writeSummary(w io.Writer, s Summary) error {
	_, err := fmt.Fprintf(w, "items=%d succeeded=%d failed=%d accepted=%d accept_rate=%s mean_confidence=%.3f\n",
		s.Items, s.Succeeded, s.Failed, s.Accepted, pct(s.AcceptRate), s.MeanConfidence)
	return eris.Wrap(err, "report: write summary")
}

func writeTable(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Items\t%d\n", s.Items)
	fmt.Fprintf(tw, "Succeeded\t%d\n", s.Succeeded)
	fmt.Fprintf(tw, "Failed\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Accepted\t%d (%s)\n", s.Accepted, pct(s.AcceptRate))
	fmt.Fprintf(tw, "Mean confidence\t%.3f\n", s.MeanConfidence)
	fmt.Fprintf(tw, "Mean processing time\t%.0f ms\n", s.MeanLatencyMS)
	if s.Threshold != nil {
		fmt.Fprintf(tw, "Threshold\t%.2f\n", *s.Threshold)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FIELD\tCOVERAGE\tMEAN CONF\tACCEPTED\tLOW\tMISSING")
	for _, f := range s.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%d\t%d\t%d\n",
			f.Field, pct(f.Coverage), f.MeanConfidence, f.Accepted, f.LowConfidence, f.Missing)
	}

	if len(s.FailuresByKind) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "FAILURE KIND\tCOUNT")
		for _, k := range s.Kinds() {
			fmt.Fprintf(tw, "%s\t%d\n", k, s.FailuresByKind[k])
		}
	}
	return eris.Wrap(tw.Flush(), "report: flush table")
}
