package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "irsb.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[node]
db_path = "/var/lib/irsb"
reputation_url = "http://localhost:9000/outcomes"

[roles]
arbitrator = "`+strings.Repeat("ab", 32)+`"
treasury = "`+strings.Repeat("cd", 32)+`"

[log]
level = "debug"
format = "json"
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/irsb", cfg.Node.DBPath)
	assert.Equal(t, "http://localhost:9000/outcomes", cfg.Node.ReputationURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	addr, err := parseAddress(cfg.Roles.Arbitrator)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), addr[0])
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "irsb-data", cfg.Node.DBPath)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestParseAddressRejectsBadInput(t *testing.T) {
	_, err := parseAddress("zz")
	assert.Error(t, err)
	_, err = parseAddress("abcd")
	assert.Error(t, err)
}
