package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("defaults pass", func(t *testing.T) {
		cfg := Defaults()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "daemon"
		assert.ErrorContains(t, cfg.Validate(), "unknown mode")
	})

	t.Run("rejects non-monotonic escalation", func(t *testing.T) {
		cfg := Defaults()
		cfg.Resolution.EscalationFactor = 1
		assert.ErrorContains(t, cfg.Validate(), "escalation_factor")
	})

	t.Run("rejects malformed stake", func(t *testing.T) {
		cfg := Defaults()
		cfg.Resolution.MinReportStake = "1.5e18"
		assert.ErrorContains(t, cfg.Validate(), "min_report_stake")
	})
}

func TestResolutionParams(t *testing.T) {
	cfg := Defaults()
	cfg.Resolution.MinReportStake = "250"
	cfg.Resolution.BaseThreshold = "1000"

	p := cfg.ResolutionParams()
	assert.Equal(t, "250", p.MinReportStake.String())
	assert.Equal(t, "1000", p.BaseThreshold.String())
	assert.Equal(t, cfg.Resolution.EscalationFactor, p.EscalationFactor)
	assert.Equal(t, cfg.Resolution.VotingPeriod, p.VotingPeriod)
	assert.Equal(t, cfg.Resolution.ArbitrationWindow, p.ArbitrationWindow)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
mode = "full"
log_level = "debug"

[server]
enabled = true
port = 9090
rate_limit = 50
rate_window = "30s"

[watcher]
enabled = true
poll_interval = "15s"

[resolution]
min_report_stake = "100"
base_threshold = "500"
escalation_factor = 3
voting_period = 600
arbitration_window = 60
`
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.RateLimit)
	assert.Equal(t, "30s", cfg.Server.RateWindow.Duration.String())
	assert.Equal(t, "15s", cfg.Watcher.PollInterval.Duration.String())
	assert.EqualValues(t, 3, cfg.Resolution.EscalationFactor)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "serve"`), 0o600))

	t.Setenv("RESOLVED_MODE", "watch")
	t.Setenv("RESOLVED_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, 7070, cfg.Server.Port)
}
