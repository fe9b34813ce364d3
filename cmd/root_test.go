package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vis2attr/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"analyze", "report", "schema", "items", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "vis2attr", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestModeOf(t *testing.T) {
	assert.Equal(t, "analyze", modeOf(analyzeCmd))
	assert.Equal(t, "items", modeOf(itemsShowCmd))
	assert.Equal(t, "schema", modeOf(schemaValidateCmd))
	assert.Equal(t, "serve", modeOf(serveCmd))
	assert.Equal(t, "schema", modeOf(rootCmd))
}

func TestApplyFlagOverrides(t *testing.T) {
	defer resetFlags(rootCmd)
	require.NoError(t, analyzeCmd.Flags().Set("provider", "mistral"))
	require.NoError(t, analyzeCmd.Flags().Set("concurrency", "9"))
	require.NoError(t, analyzeCmd.Flags().Set("format", "jsonl"))

	c := &config.Config{}
	applyFlagOverrides(analyzeCmd, c)
	assert.Equal(t, "mistral", c.Provider.Name)
	assert.Equal(t, 9, c.Batch.Concurrency)
	assert.Equal(t, "jsonl", c.Output.Format)
	assert.Empty(t, c.Output.Path)
}

func TestAnalyze_InvalidConfigFailsBeforeWork(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	_, err := execute(t, "analyze", "--config", cfgPath, "--provider", "anthropic", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic_api_key")
	_, statErr := os.Stat(filepath.Join(dir, "out", "results.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestEndToEnd_AnalyzeReportItems(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	photos := filepath.Join(dir, "photos")
	writePNG(t, filepath.Join(photos, "kettle", "front.png"), 40, 30)
	writePNG(t, filepath.Join(photos, "kettle", "back.png"), 40, 30)
	writePNG(t, filepath.Join(photos, "lamp", "1.png"), 20, 60)

	out, err := execute(t, "analyze", "--config", cfgPath, "--concurrency", "2", photos)
	require.NoError(t, err, out)
	assert.Contains(t, out, "items=2 succeeded=2 failed=0 accepted=2")

	predictions := filepath.Join(dir, "out", "results.csv")
	data, err := os.ReadFile(predictions)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "item_id,timestamp,processing_time_ms,success,accepted,confidence_score,brand_value"))

	out, err = execute(t, "report", "--config", cfgPath, "-f", "json", predictions)
	require.NoError(t, err, out)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.InDelta(t, 2, summary["items"], 0)
	assert.InDelta(t, 1.0, summary["accept_rate"], 1e-9)

	out, err = execute(t, "report", "--config", cfgPath, "-f", "summary", "--threshold", "0.95", predictions)
	require.NoError(t, err, out)
	assert.Contains(t, out, "accepted=0")

	_, err = execute(t, "report", "--config", cfgPath, "--threshold", "1.5", predictions)
	assert.ErrorContains(t, err, "outside [0,1]")

	out, err = execute(t, "items", "list", "--config", cfgPath)
	require.NoError(t, err, out)
	ids := strings.Fields(out)
	require.Len(t, ids, 2)

	out, err = execute(t, "items", "show", "--config", cfgPath, "--kind", "lineage", ids[0])
	require.NoError(t, err, out)
	assert.Contains(t, out, `"pipeline_version": "1.0.0"`)

	_, err = execute(t, "items", "show", "--config", cfgPath, "--kind", "thumbnails", ids[0])
	assert.ErrorContains(t, err, "unknown kind")

	out, err = execute(t, "items", "delete", "--config", cfgPath, ids[0])
	require.NoError(t, err, out)
	out, err = execute(t, "items", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, strings.Fields(out))
}

func TestSchemaValidate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := execute(t, "schema", "validate", "--config", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, `schema "product": 5 fields`)
	assert.Contains(t, out, "primary_colors")

	custom := filepath.Join(dir, "shoes.yaml")
	require.NoError(t, os.WriteFile(custom, []byte(`name: shoes
fields:
  - name: size
    kind: scalar
    value_type: number
`), 0o644))
	out, err = execute(t, "schema", "validate", "--config", cfgPath, custom)
	require.NoError(t, err, out)
	assert.Contains(t, out, `schema "shoes": 1 fields`)

	_, err = execute(t, "schema", "validate", "--config", cfgPath, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
