package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[server_setting]
server_ip = "127.0.0.1"
port = "1883"
sql_ip = "127.0.0.1"
sql_account = "erps"
sql_password = "secret"

[ambient]
outbound_workers = 4
tick_interval_ms = 250

[modes.ng1v1]
team_size = 1
ranked = true
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileValuesWithFlagOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)

	cfg, err := Load(path, []string{"--port", "9001"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.ServerIP)
	assert.Equal(t, "9001", cfg.Port) // flag wins over file
	assert.Equal(t, 4, cfg.OutboundWorkers)
	assert.Equal(t, 250, cfg.TickIntervalMS)
	assert.Equal(t, 60, cfg.DedupWindowSeconds) // ambient default, not set in file
	assert.Equal(t, 1, cfg.Modes["ng1v1"].TeamSize)
}

func TestLoad_MissingServerSettingIsError(t *testing.T) {
	path := writeTempConfig(t, "[ambient]\noutbound_workers = 1\n")
	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestBrokerURLAndDSN(t *testing.T) {
	cfg := &Config{ServerIP: "10.0.0.1", Port: "1883", SQLAccount: "u", SQLPassword: "p", SQLIP: "10.0.0.2"}
	assert.Equal(t, "tcp://10.0.0.1:1883", cfg.BrokerURL())
	assert.Equal(t, "u:p@tcp(10.0.0.2:3306)/erps?parseTime=true", cfg.MySQLDSN())
}
