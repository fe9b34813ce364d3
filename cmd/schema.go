package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/vis2attr/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:         "schema",
	Short:       "Inspect attribute schemas",
	Annotations: withMode("schema"),
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load a schema file and list its fields",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Schema.Path
		if len(args) == 1 {
			path = args[0]
		}
		s := schema.Default()
		if path != "" {
			var err error
			if s, err = schema.Load(path); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "schema %q: %d fields\n", s.Name(), s.Len())
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tTYPE\tDEFAULT")
		for _, d := range s.Descriptors() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", d.Name, d.Kind, d.ValueType, d.DefaultValue())
		}
		return tw.Flush()
	},
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
	rootCmd.AddCommand(schemaCmd)
}
