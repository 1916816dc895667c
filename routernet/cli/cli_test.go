package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/config"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/data"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/engine"
)

const quietConfig = `
log:
  level: error
server:
  enabled: false
metrics:
  enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routernet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand("routernet-test", "1.2.3")
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "routernet-test v1.2.3\n", out)
}

func TestBuildCommand(t *testing.T) {
	path := writeConfig(t, quietConfig)

	out, err := run(t, "build", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "LAYER")
	assert.Contains(t, out, "disgregator")
	assert.Contains(t, out, "45 units, 1 entry units")
}

func TestBuildCommandJSON(t *testing.T) {
	path := writeConfig(t, quietConfig)

	out, err := run(t, "build", "--config", path, "--json")
	require.NoError(t, err)

	var rows []data.LayerRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 45)
	assert.Len(t, rows[0].Outputs, 1, "first layer is an aggregator layer")
	assert.Len(t, rows[44].Outputs, 4, "entry unit fans out to the disgregator layer below")
}

func TestSimulateCommand(t *testing.T) {
	path := writeConfig(t, quietConfig)

	out, err := run(t, "simulate", "--config", path, "--amount", "1ether")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "0x0000000000000000000000000000000000000b01")
	assert.Contains(t, out, "0.25")
}

func TestSimulateCommandRevert(t *testing.T) {
	path := writeConfig(t, quietConfig)

	out, err := run(t, "simulate", "--config", path, "--amount", "1000ether")
	require.Error(t, err)
	assert.Contains(t, out, "reverted")
}

func TestSimulateCommandInvalidAmount(t *testing.T) {
	path := writeConfig(t, quietConfig)

	_, err := run(t, "simulate", "--config", path, "--amount", "lots")
	assert.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	path := writeConfig(t, quietConfig)
	dir := t.TempDir()

	out, err := run(t, "export", "--config", path, "--out", dir, "--count", "3", "--amount", "4wei")
	require.NoError(t, err)
	assert.Contains(t, out, "5 layers and 3 receipts")

	writer := data.NewIPCWriter()
	converter := data.NewConverter()

	f, err := os.Open(filepath.Join(dir, "layers.arrow"))
	require.NoError(t, err)
	defer f.Close()
	records, err := writer.ReadStream(f)
	require.NoError(t, err)
	defer records[0].Release()
	layers, err := converter.RecordToLayerRows(records[0])
	require.NoError(t, err)
	assert.Len(t, layers, 45)

	g, err := os.Open(filepath.Join(dir, "receipts.arrow"))
	require.NoError(t, err)
	defer g.Close()
	records, err = writer.ReadStream(g)
	require.NoError(t, err)
	defer records[0].Release()
	receipts, err := converter.RecordToReceipts(records[0])
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	for _, r := range receipts {
		assert.Equal(t, "succeeded", r.Status)
		assert.Equal(t, "4", r.Amount.String())
	}
}

func TestExportCommandLayersOnly(t *testing.T) {
	path := writeConfig(t, quietConfig)
	dir := t.TempDir()

	_, err := run(t, "export", "--config", path, "--out", dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "layers.arrow"))
	assert.NoFileExists(t, filepath.Join(dir, "receipts.arrow"))
}

// truncatedEntryConfig deploys one aggregator whose disgregator layer
// truncates to zero units, leaving the network without an entry.
const truncatedEntryConfig = quietConfig + `
network:
  owner: "0x00000000000000000000000000000000000000a0"
  outputs: ["0x0000000000000000000000000000000000000b01"]
  layers:
    - kind: aggregator
      multiplier: 1
    - kind: disgregator
      multiplier: 2
`

func TestExportCommandWithoutEntry(t *testing.T) {
	path := writeConfig(t, truncatedEntryConfig)
	dir := t.TempDir()

	_, err := run(t, "export", "--config", path, "--out", dir, "--count", "1")
	require.ErrorIs(t, err, engine.ErrNoEntry)

	assert.FileExists(t, filepath.Join(dir, "layers.arrow"))
	assert.NoFileExists(t, filepath.Join(dir, "receipts.arrow"))
}

func TestSimulateCommandWithoutEntry(t *testing.T) {
	path := writeConfig(t, truncatedEntryConfig)

	_, err := run(t, "simulate", "--config", path)
	assert.ErrorIs(t, err, engine.ErrNoEntry)
}

func TestExportCommandWithoutUnits(t *testing.T) {
	path := writeConfig(t, quietConfig+`
network:
  owner: "0x00000000000000000000000000000000000000a0"
  outputs: ["0x0000000000000000000000000000000000000b01"]
  layers:
    - kind: disgregator
      multiplier: 2
`)

	_, err := run(t, "export", "--config", path, "--out", t.TempDir())
	require.ErrorIs(t, err, data.ErrEmptyBatch)
	assert.Contains(t, err.Error(), "no routing units were deployed")
}

func TestConfigCommand(t *testing.T) {
	path := writeConfig(t, quietConfig)

	out, err := run(t, "config", "--config", path)
	require.NoError(t, err)

	cfg := config.Default()
	require.NoError(t, cfg.Parse([]byte(out)))
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLogLevelOverride(t *testing.T) {
	path := writeConfig(t, quietConfig)

	_, err := run(t, "build", "--config", path, "--log-level", "verbose")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "build", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Metrics.Enabled = false

	eng, err := engine.New(cfg, nil)
	require.NoError(t, err)
	_, err = eng.Deploy()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, serve(ctx, eng, &out))
	assert.Contains(t, out.String(), "arrow on 127.0.0.1:")
	assert.Contains(t, out.String(), "shutting down")
	assert.False(t, eng.Status().IsRunning)
}
