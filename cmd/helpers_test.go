package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// execute runs rootCmd with args and returns combined output. Flag state is
// reset afterwards so commands can be run again by later tests.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer resetFlags(rootCmd)

	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 3), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeConfig writes a stub-provider config rooted in dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := fmt.Sprintf(`provider:
  name: stub
  requests_per_second: 0
retry:
  initial_backoff_ms: 1
  max_backoff_ms: 2
storage:
  backend: files
  root: %s
output:
  path: %s
log:
  level: error
  format: json
`, filepath.Join(dir, "data"), filepath.Join(dir, "out", "results.csv"))
	path := filepath.Join(dir, "vis2attr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
