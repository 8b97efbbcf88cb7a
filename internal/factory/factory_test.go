package factory

import (
	"context"
	"testing"

	"portal-auth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.Environment = "development"
	cfg.Redis.URL = ""
	cfg.Scylla.Enabled = false
	cfg.Kafka.Enabled = false
	cfg.Elasticsearch.Enabled = false
	cfg.Clickhouse.Enabled = false
	cfg.KMS.Enabled = false
	cfg.Server.EnableTLS = false
	cfg.Auth.OtpMode = config.OtpModeLocal
	cfg.SMS.Provider = "log"
	cfg.Identity.BaseURL = ""
	return cfg
}

func TestNewWithoutBackendsFallsBackToMemory(t *testing.T) {
	f, err := New(devConfig())
	require.NoError(t, err)
	defer f.Close()

	services := f.ServiceFactory()
	require.NotNil(t, services.AuthService())
	require.NotNil(t, services.PortalService())
	assert.Same(t, services, f.ServiceFactory())

	status := f.HealthStatus(context.Background())
	assert.Equal(t, map[string]string{"sessions": "healthy"}, status)
	assert.True(t, f.IsHealthy(context.Background()))

	families, err := f.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := devConfig()
	cfg.Auth.AttemptCeiling = 0

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTP_ATTEMPT_CEILING")
}

func TestProductionRefusesEchoedCodes(t *testing.T) {
	cfg := devConfig()
	cfg.Environment = "production"
	cfg.Auth.OtpEchoEnabled = true

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTP_ECHO_ENABLED")
}

func TestCloseIsIdempotent(t *testing.T) {
	f, err := New(devConfig())
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	f.WaitForClose()
}
