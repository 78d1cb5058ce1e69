package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/palisade/internal/brand"
)

// writeTestPolicy lays out a minimal enabled cluster policy tree. The
// management ipset is defined explicitly so compilation never inspects
// the test host's interfaces.
func writeTestPolicy(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "firewall"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "firewall", "cluster.fw"), []byte(`[OPTIONS]
enable: 1

[IPSET management]
192.168.1.0/24

[RULES]
IN ACCEPT -p tcp -dport 22
`), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "local"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "local", "host.fw"), []byte(`[OPTIONS]
nftables: 1
`), 0o644))

	return root
}

func writeDaemonConfig(t *testing.T, root, stateDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palisade.hcl")
	require.NoError(t, os.WriteFile(path, []byte(
		"config_root = \""+root+"\"\nstate_dir = \""+stateDir+"\"\n"), 0o644))
	return path
}

func TestRunCompile(t *testing.T) {
	root := writeTestPolicy(t)
	configFile := writeDaemonConfig(t, root, t.TempDir())

	var out bytes.Buffer
	require.NoError(t, RunCompile(configFile, "", &out))

	var batch struct {
		Nftables []json.RawMessage `json:"nftables"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &batch))
	assert.NotEmpty(t, batch.Nftables)
	assert.Contains(t, out.String(), `"proxmox-firewall"`)
	assert.Contains(t, out.String(), `"v4-dc/management"`)
}

func TestRunCompileDisabled(t *testing.T) {
	configFile := writeDaemonConfig(t, t.TempDir(), t.TempDir())

	var out bytes.Buffer
	require.NoError(t, RunCompile(configFile, "", &out))
	assert.Contains(t, out.String(), "firewall disabled")
}

func TestRunDiff(t *testing.T) {
	root := writeTestPolicy(t)
	stateDir := t.TempDir()
	configFile := writeDaemonConfig(t, root, stateDir)

	// without recorded state, everything shows as added
	var out bytes.Buffer
	require.NoError(t, RunDiff(configFile, "", &out))
	assert.Contains(t, out.String(), "+++ compiled")

	// record the compiled batch, then the diff is empty
	batch, err := compileBatch(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, writeLastBatch(stateDir, batch))

	out.Reset()
	require.NoError(t, RunDiff(configFile, "", &out))
	assert.Equal(t, "no changes\n", out.String())
}

func TestWriteLastBatchReplacesAtomically(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")

	batch, err := compileBatch(context.Background(), writeTestPolicy(t))
	require.NoError(t, err)
	require.NoError(t, writeLastBatch(stateDir, batch))
	require.NoError(t, writeLastBatch(stateDir, batch))

	entries, err := os.ReadDir(stateDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "last-batch.json", entries[0].Name())
}

func TestRunSkeleton(t *testing.T) {
	var out bytes.Buffer
	RunSkeleton(&out)
	assert.Contains(t, out.String(), "add table inet proxmox-firewall")
	assert.Contains(t, out.String(), "add table bridge proxmox-firewall-guests")
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	RunVersion(&out)
	assert.True(t, strings.HasPrefix(out.String(), brand.BinaryName+" "))
}
