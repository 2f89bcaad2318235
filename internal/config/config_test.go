package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "niramay.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.SessionBootstrap)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 13, cfg.Maps.Zoom)
	assert.False(t, cfg.S3.Enabled())
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"NIRAMAY_PORT":                      "9000",
		"NIRAMAY_BASE_URL":                  "https://niramay.example.org/",
		"NIRAMAY_SESSION_BOOTSTRAP_TIMEOUT": "2s",
		"NIRAMAY_ALLOWED_ORIGINS":           "niramay.example.org, *.niramay.example.org ,",
		"NIRAMAY_MAPS_CENTER_LAT":           "28.6139",
		"NIRAMAY_MAPS_CENTER_LNG":           "77.2090",
		"NIRAMAY_S3_BUCKET":                 "photos",
		"NIRAMAY_S3_ACCESS_KEY":             "ak",
		"NIRAMAY_S3_SECRET_KEY":             "sk",
		"NIRAMAY_VISION_API_KEY":            "vk",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "https://niramay.example.org", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.SessionBootstrap)
	assert.Equal(t, []string{"niramay.example.org", "*.niramay.example.org"}, cfg.AllowedOrigins)
	assert.InDelta(t, 28.6139, cfg.Maps.Center.Lat, 1e-9)
	assert.True(t, cfg.S3.Enabled())
	assert.Equal(t, "vk", cfg.Vision.APIKey)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":     {"NIRAMAY_SESSION_TTL": "forever"},
		"bad float":        {"NIRAMAY_MAPS_CENTER_LAT": "north"},
		"bad int":          {"NIRAMAY_MAPS_ZOOM": "close"},
		"centre off globe": {"NIRAMAY_MAPS_CENTER_LAT": "123"},
		"zero bootstrap":   {"NIRAMAY_SESSION_BOOTSTRAP_TIMEOUT": "0s"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(lookup(vars))
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NIRAMAY_DB_PATH=/tmp/from-file.db\n"), 0o600))
	t.Setenv("NIRAMAY_DB_PATH", "")
	os.Unsetenv("NIRAMAY_DB_PATH")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
