package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5*time.Minute, cfg.Auth.OtpTTL)
	assert.Equal(t, 3, cfg.Auth.AttemptCeiling)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5, cfg.Auth.CaptchaLength)
	assert.False(t, cfg.Auth.AutoResendOnLockout)
	assert.False(t, cfg.Auth.OtpEchoEnabled)
	assert.Equal(t, OtpModeLocal, cfg.Auth.OtpMode)
	assert.False(t, cfg.Redis.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("AUTO_RESEND_ON_LOCKOUT", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := LoadConfig()

	assert.Equal(t, 90*time.Second, cfg.Auth.OtpTTL)
	assert.True(t, cfg.Auth.AutoResendOnLockout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled())
}

func TestValidateRejectsEchoInProduction(t *testing.T) {
	cfg := LoadConfig()
	cfg.Environment = "production"
	cfg.Auth.OtpEchoEnabled = true
	cfg.Identity.BaseURL = "https://identity.internal"
	cfg.SMS.Provider = "http"
	cfg.SMS.BaseURL = "https://sms.internal"
	cfg.Server.EnableTLS = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTP_ECHO_ENABLED")

	cfg.Auth.OtpEchoEnabled = false
	require.NoError(t, cfg.Validate())
}

func TestValidateAuthorityMode(t *testing.T) {
	cfg := LoadConfig()
	cfg.Auth.OtpMode = OtpModeAuthority

	require.Error(t, cfg.Validate())

	cfg.OtpAuthority.BaseURL = "https://otp.internal"
	require.NoError(t, cfg.Validate())

	cfg.Auth.OtpMode = "carrier-pigeon"
	require.Error(t, cfg.Validate())
}

func TestValidateSharedRedisNeedsSharedSecrets(t *testing.T) {
	cfg := LoadConfig()
	cfg.Redis.URL = "redis://localhost:6379/0"
	cfg.Hashing.Pepper = ""
	cfg.KMS.Enabled = false
	cfg.KMS.LocalKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTP_PEPPER")
	assert.Contains(t, err.Error(), "SESSION_ENCRYPTION_KEY")

	cfg.Hashing.Pepper = "shared-pepper"
	cfg.KMS.LocalKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	require.NoError(t, cfg.Validate())

	cfg.KMS.LocalKey = ""
	cfg.KMS.Enabled = true
	cfg.KMS.KeyID = "alias/portal"
	require.NoError(t, cfg.Validate())

	cfg.KMS.Enabled = false
	cfg.KMS.LocalKey = "not-a-key"
	require.Error(t, cfg.Validate())
}
