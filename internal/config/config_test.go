package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://billing@localhost/billing?sslmode=disable")
	t.Setenv("TEST_EMAIL", "qa@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.TestMode)
	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, "billing.charge.completed", cfg.KafkaTopic)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "|", cfg.Gateway.Delimiter)
	assert.Equal(t, 60*time.Second, cfg.Gateway.BusyDelay)
	assert.Equal(t, 5*time.Minute, cfg.Gateway.TransientDelay)
	assert.Equal(t, 2, cfg.Gateway.ChargeAttempts)
	assert.Equal(t, 3, cfg.Escalation.Threshold)
	assert.Equal(t, "Wireless Nomad", cfg.Mail.CompanyName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://billing@localhost/billing")
	t.Setenv("BILLING_TEST_MODE", "false")
	t.Setenv("GATEWAY_URL", "https://gateway.example.com/transact")
	t.Setenv("GATEWAY_LOGIN_ID", "login")
	t.Setenv("GATEWAY_TRANSACTION_KEY", "key")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("CREDIT_CARD_UPDATE_URL", "https://billing.example.com/card")
	t.Setenv("GATEWAY_MAX_BUSY_RETRIES", "0")
	t.Setenv("GATEWAY_TRANSIENT_DELAY", "10s")
	t.Setenv("BILLING_TIMEZONE", "America/Vancouver")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.TestMode)
	assert.Equal(t, 0, cfg.Gateway.MaxBusyRetries)
	assert.Equal(t, 10*time.Second, cfg.Gateway.TransientDelay)
	assert.Equal(t, "America/Vancouver", cfg.Location.String())
	assert.Equal(t, "https://billing.example.com/card", cfg.Mail.CardUpdateURL)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"CHARGE_ATTEMPTS", "two"},
		{"GATEWAY_MAX_BUSY_RETRIES", "30x"},
		{"GATEWAY_TIMEOUT", "a minute"},
		{"GATEWAY_BUSY_DELAY", "60 seconds"},
		{"BILLING_TEST_MODE", "maybe"},
		{"BILLING_DEBUG", "enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://billing@localhost/billing")
			t.Setenv("TEST_EMAIL", "qa@example.com")
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
			assert.Contains(t, err.Error(), tt.value)
		})
	}
}

func TestLoad_BooleanSpellings(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://billing@localhost/billing")
	t.Setenv("TEST_EMAIL", "qa@example.com")
	t.Setenv("BILLING_TEST_MODE", "Yes")
	t.Setenv("BILLING_DEBUG", "on")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TestMode)
	assert.True(t, cfg.Debug)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			TestMode: true,
			Gateway:  GatewayConfig{Delimiter: "|", ChargeAttempts: 2},
			Mail:     MailConfig{TestEmail: "qa@example.com"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing test email", func(c *Config) { c.Mail.TestEmail = "" }, "TEST_EMAIL"},
		{"live mode without credentials", func(c *Config) { c.TestMode = false }, "gateway URL"},
		{"live mode without card update url", func(c *Config) {
			c.TestMode = false
			c.Gateway.URL, c.Gateway.LoginID, c.Gateway.TransactionKey = "https://gw", "login", "key"
			c.Mail.AdminEmail = "admin@example.com"
		}, "CREDIT_CARD_UPDATE_URL"},
		{"multi character delimiter", func(c *Config) { c.Gateway.Delimiter = "||" }, "single character"},
		{"no charge attempts", func(c *Config) { c.Gateway.ChargeAttempts = 0 }, "charge attempts"},
		{"negative threshold", func(c *Config) { c.Escalation.Threshold = -1 }, "threshold"},
		{"negative retries", func(c *Config) { c.Gateway.MaxBusyRetries = -1 }, "retry limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
