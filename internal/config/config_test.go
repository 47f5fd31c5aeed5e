package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "sla-service", cfg.App.Name)
	require.Equal(t, "0.0.0.0:8080", cfg.App.Addr())

	require.True(t, cfg.Sla.ScannerEnabled)
	require.Equal(t, time.Minute, cfg.Sla.TickInterval())
	require.Equal(t, 100, cfg.Sla.ScanBatchSize)
	require.Equal(t, 200, cfg.Sla.BackfillBatchSize)
	require.True(t, cfg.Sla.EscalationEnabled)
	require.Empty(t, cfg.Sla.OnCallEmails)

	require.Equal(t, "sla.notifications", cfg.Notification.RedisChannel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SLA_SCANNER_ENABLED", "false")
	t.Setenv("SLA_SCAN_INTERVAL_MS", "5000")
	t.Setenv("SLA_SCAN_BATCH_SIZE", "25")
	t.Setenv("SLA_ESCALATION_ENABLED", "false")
	t.Setenv("SLA_ONCALL_EMAILS", "a@example.com, b@example.com,,")
	t.Setenv("SLA_DEEP_LINK_BASE_URL", "https://desk.example.com")
	t.Setenv("NOTIFY_REDIS_CHANNEL", "sla.alerts")

	cfg, err := Load()
	require.NoError(t, err)

	require.False(t, cfg.Sla.ScannerEnabled)
	require.Equal(t, 5*time.Second, cfg.Sla.TickInterval())
	require.Equal(t, 25, cfg.Sla.ScanBatchSize)
	require.False(t, cfg.Sla.EscalationEnabled)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Sla.OnCallEmails)
	require.Equal(t, "https://desk.example.com", cfg.Sla.DeepLinkBaseURL)
	require.Equal(t, "sla.alerts", cfg.Notification.RedisChannel)
}

func TestLoadMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("SLA_SCAN_INTERVAL_MS", "soon")
	t.Setenv("SLA_SCAN_BATCH_SIZE", "-5")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 60000, cfg.Sla.TickIntervalMS)
	require.Equal(t, -5, cfg.Sla.ScanBatchSize) // bounds are the caller's concern
}

func TestTickIntervalGuardsNonPositive(t *testing.T) {
	require.Equal(t, time.Minute, SlaConfig{TickIntervalMS: 0}.TickInterval())
	require.Equal(t, time.Minute, SlaConfig{TickIntervalMS: -1}.TickInterval())
	require.Equal(t, 10*time.Millisecond, SlaConfig{TickIntervalMS: 10}.TickInterval())
}
