package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesValidConfig(t *testing.T) {
	path := writeConfig(t, `
# comment line
mode=client
version=70015
direction=seed.testnet.example
protocol_version=18333
custom_ip=127.0.0.1:18333
addr_recv_ipv4=10.0.0.1
addr_trans_ipv4=10.0.0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeClient, cfg.Mode)
	assert.EqualValues(t, 70015, cfg.Version)
	assert.Equal(t, "seed.testnet.example", cfg.Direction)
	assert.EqualValues(t, 18333, cfg.ProtocolVersion)
	assert.Equal(t, "127.0.0.1:18333", cfg.CustomIP)
}

func TestLoadAllowsMissingOptionalCustomIP(t *testing.T) {
	path := writeConfig(t, `
mode=server
version=70015
direction=seed.testnet.example
protocol_version=18333
addr_recv_ipv4=10.0.0.1
addr_trans_ipv4=10.0.0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.CustomIP)
}

func TestLoadRejectsMissingRequiredKey(t *testing.T) {
	path := writeConfig(t, `
mode=client
version=70015
direction=seed.testnet.example
`)

	_, err := Load(path)
	require.Error(t, err)
	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeConfig(t, "mode\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	assert.Error(t, err)
}

func TestLoadFallsBackToDefaultRetryKnobs(t *testing.T) {
	path := writeConfig(t, `
mode=client
version=70015
direction=seed.testnet.example
protocol_version=18333
addr_recv_ipv4=10.0.0.1
addr_trans_ipv4=10.0.0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultGetDataRetryLimit, cfg.GetDataRetryLimit)
	assert.Equal(t, DefaultMalformedPayloadRetryLimit, cfg.MalformedPayloadRetryLimit)
	assert.Equal(t, DefaultRetryBackoff, cfg.RetryBackoff)
}

func TestLoadParsesConfiguredRetryKnobs(t *testing.T) {
	path := writeConfig(t, `
mode=client
version=70015
direction=seed.testnet.example
protocol_version=18333
addr_recv_ipv4=10.0.0.1
addr_trans_ipv4=10.0.0.2
get_data_retry_limit=3
malformed_payload_retry_limit=2
retry_backoff_ms=10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.GetDataRetryLimit)
	assert.Equal(t, 2, cfg.MalformedPayloadRetryLimit)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryBackoff)
}

func TestLoadRejectsInvalidRetryBackoff(t *testing.T) {
	path := writeConfig(t, `
mode=client
version=70015
direction=seed.testnet.example
protocol_version=18333
addr_recv_ipv4=10.0.0.1
addr_trans_ipv4=10.0.0.2
retry_backoff_ms=not-a-number
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	path := writeConfig(t, `
mode=bogus
version=70015
direction=seed.testnet.example
protocol_version=18333
addr_recv_ipv4=10.0.0.1
addr_trans_ipv4=10.0.0.2
`)

	_, err := Load(path)
	assert.Error(t, err)
}
