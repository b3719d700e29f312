package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenConfigFileAbsent(t *testing.T) {
	cfg, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.ini")})
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, float64(6), cfg.MinAllocation)
	assert.True(t, cfg.AutoRegisterChargers)
}

func TestLoadOverridesFromIniFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balanz.ini")
	ini := "[host]\nhttp_addr = :9090\ndb_driver = postgres\ndb_dsn = postgres://x\n\n[balanz]\nmin_allocation = 10\n"
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o644))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, float64(10), cfg.MinAllocation)
}

func TestLoadRejectsInvalidDBDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balanz.ini")
	require.NoError(t, os.WriteFile(path, []byte("[host]\ndb_driver = mysql\n"), 0o644))

	_, err := Load([]string{"--config", path})
	assert.Error(t, err)
}
