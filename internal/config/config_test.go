package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaults(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "waterlab_lims", cfg.Database.Database)
	assert.Equal(t, "sqlite", cfg.Audit.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)

	// The shipped BDL override must survive config loading: the
	// resolver's settings-table fallback depends on it.
	overrides := cfg.Lab.TextResultStatusOverrides
	require.Contains(t, overrides, "global")
	assert.Equal(t, "WITHIN_LIMITS", overrides["global"]["BDL"])
}

func TestValidateDefaults(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	assert.NoError(t, m.Validate())
}

func TestValidateRejectsBadOverrideStatus(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	m.GetConfig().Lab.TextResultStatusOverrides = map[string]map[string]string{
		"global": {"BDL": "KIND_OF_FINE"},
	}
	assert.Error(t, m.Validate())
}

func TestValidateRejectsBadAuditBackend(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	m.GetConfig().Audit.Backend = "oracle"
	assert.Error(t, m.Validate())
}

func TestGetDatabaseURL(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	url := m.GetDatabaseURL()
	assert.Contains(t, url, "postgres://")
	assert.Contains(t, url, "waterlab_lims")
}
