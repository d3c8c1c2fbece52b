package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	KafkaTopic     string
	JaegerEndpoint string
	Port           string

	TestMode bool
	Debug    bool
	Location *time.Location
	Schedule string

	Gateway    GatewayConfig
	Mail       MailConfig
	Escalation EscalationConfig
}

type GatewayConfig struct {
	URL               string
	LoginID           string
	TransactionKey    string
	Delimiter         string
	Timeout           time.Duration
	BusyDelay         time.Duration
	TransientDelay    time.Duration
	MaxBusyRetries    int // 0 retries forever
	MaxTransientRetry int // 0 retries forever
	ChargeAttempts    int
}

type MailConfig struct {
	SMTPAddr      string
	Username      string
	Password      string
	From          string
	AdminEmail    string
	TestEmail     string
	CardUpdateURL string
	CompanyName   string
}

type EscalationConfig struct {
	Threshold int
}

var defaults = map[string]interface{}{
	"PORT":                          "8084",
	"BILLING_TIMEZONE":              "UTC",
	"BILLING_TEST_MODE":             true,
	"BILLING_DEBUG":                 false,
	"KAFKA_TOPIC":                   "billing.charge.completed",
	"GATEWAY_RESPONSE_DELIMITER":    "|",
	"GATEWAY_TIMEOUT":               60 * time.Second,
	"GATEWAY_BUSY_DELAY":            60 * time.Second,
	"GATEWAY_TRANSIENT_DELAY":       5 * time.Minute,
	"GATEWAY_MAX_BUSY_RETRIES":      30,
	"GATEWAY_MAX_TRANSIENT_RETRIES": 12,
	"CHARGE_ATTEMPTS":               2,
	"ESCALATION_THRESHOLD":          3,
	"SMTP_ADDR":                     "localhost:25",
	"MAIL_FROM":                     "billing@localhost",
	"COMPANY_NAME":                  "Wireless Nomad",
}

// Load reads the environment. Empty variables count as unset; malformed
// numbers, durations and booleans are errors rather than silent defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	tz := v.GetString("BILLING_TIMEZONE")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid BILLING_TIMEZONE %q: %w", tz, err)
	}

	p := &parser{v: v}
	cfg := &Config{
		DatabaseURL:    dbURL,
		RedisURL:       v.GetString("REDIS_URL"),
		KafkaBrokers:   v.GetString("KAFKA_BROKERS"),
		KafkaTopic:     v.GetString("KAFKA_TOPIC"),
		JaegerEndpoint: v.GetString("JAEGER_ENDPOINT"),
		Port:           v.GetString("PORT"),
		TestMode:       p.bool("BILLING_TEST_MODE"),
		Debug:          p.bool("BILLING_DEBUG"),
		Location:       loc,
		Schedule:       v.GetString("BILLING_SCHEDULE"),
		Gateway: GatewayConfig{
			URL:               v.GetString("GATEWAY_URL"),
			LoginID:           v.GetString("GATEWAY_LOGIN_ID"),
			TransactionKey:    v.GetString("GATEWAY_TRANSACTION_KEY"),
			Delimiter:         v.GetString("GATEWAY_RESPONSE_DELIMITER"),
			Timeout:           p.duration("GATEWAY_TIMEOUT"),
			BusyDelay:         p.duration("GATEWAY_BUSY_DELAY"),
			TransientDelay:    p.duration("GATEWAY_TRANSIENT_DELAY"),
			MaxBusyRetries:    p.int("GATEWAY_MAX_BUSY_RETRIES"),
			MaxTransientRetry: p.int("GATEWAY_MAX_TRANSIENT_RETRIES"),
			ChargeAttempts:    p.int("CHARGE_ATTEMPTS"),
		},
		Mail: MailConfig{
			SMTPAddr:      v.GetString("SMTP_ADDR"),
			Username:      v.GetString("SMTP_USERNAME"),
			Password:      v.GetString("SMTP_PASSWORD"),
			From:          v.GetString("MAIL_FROM"),
			AdminEmail:    v.GetString("ADMIN_EMAIL"),
			TestEmail:     v.GetString("TEST_EMAIL"),
			CardUpdateURL: v.GetString("CREDIT_CARD_UPDATE_URL"),
			CompanyName:   v.GetString("COMPANY_NAME"),
		},
		Escalation: EscalationConfig{
			Threshold: p.int("ESCALATION_THRESHOLD"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail in the middle of a run.
func (c *Config) Validate() error {
	if !c.TestMode {
		if c.Gateway.URL == "" || c.Gateway.LoginID == "" || c.Gateway.TransactionKey == "" {
			return fmt.Errorf("gateway URL, login id and transaction key are required outside test mode")
		}
		if c.Mail.AdminEmail == "" {
			return fmt.Errorf("ADMIN_EMAIL is required outside test mode")
		}
		if c.Mail.CardUpdateURL == "" {
			return fmt.Errorf("CREDIT_CARD_UPDATE_URL is required outside test mode")
		}
	}
	if c.TestMode && c.Mail.TestEmail == "" {
		return fmt.Errorf("TEST_EMAIL is required in test mode")
	}
	if len(c.Gateway.Delimiter) != 1 {
		return fmt.Errorf("gateway response delimiter must be a single character, got %q", c.Gateway.Delimiter)
	}
	if c.Gateway.ChargeAttempts < 1 {
		return fmt.Errorf("charge attempts must be at least 1")
	}
	if c.Gateway.MaxBusyRetries < 0 || c.Gateway.MaxTransientRetry < 0 {
		return fmt.Errorf("gateway retry limits must not be negative")
	}
	if c.Escalation.Threshold < 0 {
		return fmt.Errorf("escalation threshold must not be negative")
	}
	return nil
}

// parser converts typed settings and keeps the first conversion error.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, p.v.GetString(key), err)
	}
}

func (p *parser) int(key string) int {
	n, err := cast.ToIntE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	d, err := cast.ToDurationE(p.v.Get(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) bool(key string) bool {
	raw := p.v.Get(key)
	if b, ok := raw.(bool); ok {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(cast.ToString(raw))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	p.fail(key, fmt.Errorf("not a boolean"))
	return false
}
