package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture runs the CLI with output redirected.
func capture(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	defer func() { stdout, stderr = oldOut, oldErr }()

	code := run(append([]string{"mvrbtree"}, args...))
	return code, out.String(), errOut.String()
}

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mvrbtree.yaml")
	body := `storage:
  dataDir: ` + filepath.Join(dir, "data") + `
  readCacheSize: 1MB
tree:
  pageCapacity: 4
  entryPoints: 8
  optimizeThreshold: 20
logging:
  level: error
  output: stderr
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_NoArgs(t *testing.T) {
	code, out, _ := capture(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Usage:")
}

func TestRun_Help(t *testing.T) {
	for _, arg := range []string{"help", "-h", "--help"} {
		t.Run(arg, func(t *testing.T) {
			code, out, _ := capture(t, arg)
			assert.Equal(t, 0, code)
			assert.Contains(t, out, "mvrbtree <command>")
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := capture(t, "unknown")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Unknown command: unknown")
}

func TestRun_Version(t *testing.T) {
	code, out, _ := capture(t, "version", "-short")
	assert.Equal(t, 0, code)
	assert.Equal(t, version+"\n", out)

	code, out, _ = capture(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Go version")
}

func TestRun_PutGetRemove(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	code, out, errOut := capture(t, "put", "-config", cfg, "alpha", "one")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "alpha stored")

	code, out, _ = capture(t, "put", "-config", cfg, "alpha", "uno")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `replaced (was "one")`)

	code, out, _ = capture(t, "get", "-config", cfg, "alpha")
	require.Equal(t, 0, code)
	assert.Equal(t, "uno\n", out)

	code, _, errOut = capture(t, "get", "-config", cfg, "beta")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "beta not found")

	code, _, _ = capture(t, "remove", "-config", cfg, "alpha")
	require.Equal(t, 0, code)
	code, _, _ = capture(t, "get", "-config", cfg, "alpha")
	assert.Equal(t, 1, code)

	code, _, _ = capture(t, "put", "-config", cfg, "only-key")
	assert.Equal(t, 1, code)
}

func TestRun_SeedScanCheck(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	code, out, errOut := capture(t, "seed", "-config", cfg, "-count", "300")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "300 entries inserted")

	code, out, _ = capture(t, "scan", "-config", cfg)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.GreaterOrEqual(t, len(lines), 290)
	for i := 1; i < len(lines); i++ {
		prev := strings.SplitN(lines[i-1], "\t", 2)[0]
		cur := strings.SplitN(lines[i], "\t", 2)[0]
		assert.Less(t, prev, cur)
	}

	code, out, _ = capture(t, "scan", "-config", cfg, "-limit", "5")
	require.Equal(t, 0, code)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 5)

	code, out, errOut = capture(t, "check", "-config", cfg)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "OK")

	code, out, _ = capture(t, "stats", "-config", cfg)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Page capacity: 4")
	assert.Contains(t, out, "Read cache:")
}

func TestRun_Soak(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)

	code, out, errOut := capture(t, "soak", "-config", cfg, "-ops", "2000", "-duration", "1m",
		"-commit-every", "50ms")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "2,000 operations")

	code, out, errOut = capture(t, "check", "-config", cfg)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "OK")
}

func TestRun_DataFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	other := filepath.Join(dir, "other")

	code, _, errOut := capture(t, "put", "-config", cfg, "-data", other, "k", "v")
	require.Equal(t, 0, code, errOut)
	_, err := os.Stat(filepath.Join(other, "index.mvrb"))
	assert.NoError(t, err)
}

func TestRun_Config(t *testing.T) {
	code, out, _ := capture(t, "config", "init")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "pageCapacity: 64")

	dir := t.TempDir()
	cfg := writeTestConfig(t, dir)
	code, out, _ = capture(t, "config", "validate", "-config", cfg)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Configuration is valid")

	code, out, _ = capture(t, "config", "show", "-config", cfg)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "pageCapacity: 4")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tree:\n  pageCapacity: 1\n"), 0o644))
	code, _, errOut := capture(t, "config", "validate", "-config", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "tree.pageCapacity")

	code, _, _ = capture(t, "config", "validate")
	assert.Equal(t, 1, code)
	code, _, _ = capture(t, "config", "bogus")
	assert.Equal(t, 1, code)
}
