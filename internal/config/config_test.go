package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTOML = `
agent_id = "agent-42"
data_dir = "/var/lib/qc-agent"

[[instruments]]
id = "lc-1"
watch_path = "/data/lc-1"
vendor = "thermo"
enabled = true

[cloud]
endpoint = "https://cloud.example.test/"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTemp(t, validTOML)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "agent-42", cfg.AgentID)
	assert.Equal(t, 30, cfg.Watcher.ScanIntervalSeconds, "defaults should survive when unset in the file")
	assert.Len(t, cfg.Instruments, 1)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeTemp(t, validTOML+"\nbogus_top_level_key = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized")
}

func TestLoad_RejectsUnknownVendor(t *testing.T) {
	path := writeTemp(t, `
agent_id = "agent-42"
data_dir = "/var/lib/qc-agent"

[[instruments]]
id = "lc-1"
watch_path = "/data/lc-1"
vendor = "nope"

[cloud]
endpoint = "https://cloud.example.test/"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown vendor")
}

func TestLoad_RejectsEndpointWithoutTrailingSlash(t *testing.T) {
	path := writeTemp(t, `
agent_id = "agent-42"
data_dir = "/var/lib/qc-agent"

[[instruments]]
id = "lc-1"
watch_path = "/data/lc-1"
vendor = "thermo"

[cloud]
endpoint = "https://cloud.example.test"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing slash")
}

func TestLoad_CloudTokenComesFromEnvironmentOnly(t *testing.T) {
	t.Setenv("QC_AGENT_CLOUD_TOKEN", "env-secret")
	path := writeTemp(t, validTOML)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Cloud.BearerToken)
}

func TestLoad_RejectsDuplicateInstrumentIDs(t *testing.T) {
	path := writeTemp(t, `
agent_id = "agent-42"
data_dir = "/var/lib/qc-agent"

[[instruments]]
id = "lc-1"
watch_path = "/data/lc-1"
vendor = "thermo"

[[instruments]]
id = "lc-1"
watch_path = "/data/lc-2"
vendor = "bruker"

[cloud]
endpoint = "https://cloud.example.test/"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate instrument id")
}
