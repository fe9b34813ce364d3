package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/config"
)

var (
	cfg        *config.Config
	configPath string
	verbose    bool
)

// modeKey annotates commands with the config validation mode they need.
const modeKey = "config_mode"

var rootCmd = &cobra.Command{
	Use:   "vis2attr",
	Short: "Extract product attributes from photos with vision-language models",
	Long: "Reads product photos, asks a vision-language model for schema-shaped attributes " +
		"with confidences, applies confidence thresholds and stores the results.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyFlagOverrides(cmd, c)
		if verbose {
			c.Log.Level = "debug"
		}
		if err := c.Validate(modeOf(cmd)); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./vis2attr.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// modeOf returns the nearest mode annotation on cmd or its parents.
func modeOf(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if m, ok := c.Annotations[modeKey]; ok {
			return m
		}
	}
	return "schema"
}

func withMode(mode string) map[string]string {
	return map[string]string{modeKey: mode}
}

// applyFlagOverrides copies explicitly set command flags over config values.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		c.Provider.Name, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		c.Provider.Model, _ = flags.GetString("model")
	}
	if flags.Changed("concurrency") {
		c.Batch.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("output") {
		c.Output.Path, _ = flags.GetString("output")
	}
	if flags.Changed("format") && modeOf(cmd) == "analyze" {
		c.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("schema") {
		c.Schema.Path, _ = flags.GetString("schema")
	}
	if flags.Changed("port") {
		c.Server.Port, _ = flags.GetInt("port")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
