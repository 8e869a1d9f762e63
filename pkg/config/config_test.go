package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "settings.yaml")
	writeFile(t, base, `
mode: sim
http_addr: ":8080"
risk:
  max_size: 10
  throttle_max: 60
`)
	writeFile(t, filepath.Join(dir, "settings.dev.yaml"), `
http_addr: ":9090"
risk:
  max_size: 20
`)
	t.Setenv("OFC_RISK_MAX_SIZE", "30")

	s, err := Load(base, "dev")
	require.NoError(t, err)

	// Env beats the profile, the profile beats the base, the base beats
	// the defaults.
	assert.Equal(t, 30.0, s.Risk.MaxSize)
	assert.Equal(t, ":9090", s.HTTPAddr)
	assert.Equal(t, "sim", s.Mode)
	assert.Equal(t, 60, s.Risk.ThrottleMax)
	assert.Equal(t, time.Minute, s.Risk.ThrottleWindow) // default survives
}

func TestLoadMissingBaseFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestLoadMissingProfileIgnored(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "settings.yaml")
	writeFile(t, base, "mode: sim\n")

	s, err := Load(base, "prod")
	require.NoError(t, err)
	assert.Equal(t, "sim", s.Mode)
}

func TestSymbolsFromEnvList(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "settings.yaml")
	writeFile(t, base, "symbols: [BTCUSDT]\n")
	t.Setenv("OFC_SYMBOLS", "ETHUSDT,SOLUSDT")

	s, err := Load(base, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, s.Symbols)
}
