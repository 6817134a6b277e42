// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rejection cooldown policies accepted by REJECTION_COOLDOWN_POLICY.
const (
	RejectionCooldownNone         = "none"
	RejectionCooldownOTPExhausted = "otp_exhausted"
	RejectionCooldownAll          = "all"
)

// maxProductionOTPAttempts is the strictest allowed attempt limit; larger values are dev-only.
const maxProductionOTPAttempts = 5

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects the in-memory store (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// PublicBaseURL is the externally reachable base URL used to build confirmation links.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	// TokenPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file for signing confirmation tokens.
	TokenPrivateKey string `mapstructure:"TOKEN_PRIVATE_KEY"`
	// TokenPublicKey is the PEM-encoded public key or path to file; used with TOKEN_PRIVATE_KEY.
	TokenPublicKey string `mapstructure:"TOKEN_PUBLIC_KEY"`
	TokenIssuer    string `mapstructure:"TOKEN_ISSUER"`
	TokenAudience  string `mapstructure:"TOKEN_AUDIENCE"`
	// TokenTTLRaw is the confirmation token lifetime (e.g. "24h").
	TokenTTLRaw string `mapstructure:"TOKEN_TTL"`

	// MaxChanges is the lifetime cap of approved changes per subject.
	MaxChanges int `mapstructure:"MAX_CHANGES"`
	// CooldownWindowRaw is the minimum time between approved changes (e.g. "4380h").
	CooldownWindowRaw string `mapstructure:"COOLDOWN_WINDOW"`
	// AllowedValuesRaw is the comma-separated set of values the protected attribute may take.
	AllowedValuesRaw string `mapstructure:"ALLOWED_VALUES"`
	// AttributeName labels the protected attribute in notifications.
	AttributeName string `mapstructure:"ATTRIBUTE_NAME"`

	OTPLength        int `mapstructure:"OTP_LENGTH"`
	OTPExpiryMinutes int `mapstructure:"OTP_EXPIRY_MINUTES"`
	OTPMaxAttempts   int `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPMaxResends    int `mapstructure:"OTP_MAX_RESENDS"`
	// OTPHashCost is the bcrypt cost used to hash OTP codes at rest.
	OTPHashCost int `mapstructure:"OTP_HASH_COST"`
	// RequirePhoneForOTP refuses the phone-less path (direct admin review) when true.
	RequirePhoneForOTP bool `mapstructure:"REQUIRE_PHONE_FOR_OTP"`

	// RejectionCooldownPolicy selects which rejections start a cooldown: none, otp_exhausted, all.
	RejectionCooldownPolicy string `mapstructure:"REJECTION_COOLDOWN_POLICY"`
	RejectionCooldownRaw    string `mapstructure:"REJECTION_COOLDOWN"`

	// AlertReviewSLARaw is how long an alert may wait before the sweeper flags it.
	AlertReviewSLARaw string `mapstructure:"ALERT_REVIEW_SLA"`
	SweepIntervalRaw  string `mapstructure:"SWEEP_INTERVAL"`
	SweepBatchSize    int    `mapstructure:"SWEEP_BATCH_SIZE"`
	// EscalationPolicyPath optionally points at a Rego file overriding the default escalation policy.
	EscalationPolicyPath string `mapstructure:"ESCALATION_POLICY_PATH"`

	// SMSLocalAPIKey is the API key for SMS Local (OTP delivery).
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	SMTPAddr     string `mapstructure:"SMTP_ADDR"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// OTPReturnToClient when true captures codes and links in memory for GET /dev/outbox instead of
	// sending them. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// RedisAddr enables the Redis-backed submit rate limiter when set.
	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	SubmitRateLimit     int    `mapstructure:"SUBMIT_RATE_LIMIT"`
	SubmitRateWindowRaw string `mapstructure:"SUBMIT_RATE_WINDOW"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// EventsKafkaBrokers is a comma-separated list of Kafka brokers for workflow events.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	EventsKafkaTopic   string `mapstructure:"EVENTS_KAFKA_TOPIC"`

	// Event shipper only.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("TOKEN_PRIVATE_KEY", "")
	v.SetDefault("TOKEN_PUBLIC_KEY", "")
	v.SetDefault("TOKEN_ISSUER", "acc-gate")
	v.SetDefault("TOKEN_AUDIENCE", "acc-confirm")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("MAX_CHANGES", 2)
	v.SetDefault("COOLDOWN_WINDOW", "4380h") // ~6 months
	v.SetDefault("ALLOWED_VALUES", "male,female,non_binary,unspecified")
	v.SetDefault("ATTRIBUTE_NAME", "gender")
	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_EXPIRY_MINUTES", 15)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_MAX_RESENDS", 3)
	v.SetDefault("OTP_HASH_COST", 10)
	v.SetDefault("REQUIRE_PHONE_FOR_OTP", false)
	v.SetDefault("REJECTION_COOLDOWN_POLICY", RejectionCooldownOTPExhausted)
	v.SetDefault("REJECTION_COOLDOWN", "24h")
	v.SetDefault("ALERT_REVIEW_SLA", "72h")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("ESCALATION_POLICY_PATH", "")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("SUBMIT_RATE_LIMIT", 5)
	v.SetDefault("SUBMIT_RATE_WINDOW", "1h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "attribute-change-control")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "acc-workflow-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "acc-event-shipper")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and the production-only restrictions.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.MaxChanges < 1 {
		return errors.New("config: MAX_CHANGES must be at least 1")
	}
	if len(c.AllowedValues()) < 2 {
		return errors.New("config: ALLOWED_VALUES must list at least two values")
	}
	if strings.TrimSpace(c.AttributeName) == "" {
		return errors.New("config: ATTRIBUTE_NAME must not be blank")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return errors.New("config: OTP_LENGTH must be between 4 and 10")
	}
	if c.OTPExpiryMinutes < 1 {
		return errors.New("config: OTP_EXPIRY_MINUTES must be positive")
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be positive")
	}
	if c.OTPMaxResends < 0 {
		return errors.New("config: OTP_MAX_RESENDS must not be negative")
	}
	if c.OTPHashCost < 4 || c.OTPHashCost > 31 {
		return errors.New("config: OTP_HASH_COST must be between 4 and 31")
	}
	switch c.RejectionCooldownPolicy {
	case RejectionCooldownNone, RejectionCooldownOTPExhausted, RejectionCooldownAll:
	default:
		return fmt.Errorf("config: REJECTION_COOLDOWN_POLICY must be one of none, otp_exhausted, all; got %q", c.RejectionCooldownPolicy)
	}
	if c.IsProduction() {
		if c.OTPReturnToClient {
			return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
		}
		if c.OTPMaxAttempts > maxProductionOTPAttempts {
			return fmt.Errorf("config: OTP_MAX_ATTEMPTS above %d is only allowed outside production", maxProductionOTPAttempts)
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when APP_ENV=production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// TokenTTL parses TokenTTLRaw. Returns 24h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	return parseDuration(c.TokenTTLRaw, 24*time.Hour)
}

// CooldownWindow parses CooldownWindowRaw. Returns 4380h if unset or invalid.
func (c *Config) CooldownWindow() time.Duration {
	return parseDuration(c.CooldownWindowRaw, 4380*time.Hour)
}

// RejectionCooldown parses RejectionCooldownRaw. Returns 24h if unset or invalid.
func (c *Config) RejectionCooldown() time.Duration {
	return parseDuration(c.RejectionCooldownRaw, 24*time.Hour)
}

// AlertReviewSLA parses AlertReviewSLARaw. Returns 72h if unset or invalid.
func (c *Config) AlertReviewSLA() time.Duration {
	return parseDuration(c.AlertReviewSLARaw, 72*time.Hour)
}

// SweepInterval parses SweepIntervalRaw. Returns 1m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepIntervalRaw, time.Minute)
}

// SubmitRateWindow parses SubmitRateWindowRaw. Returns 1h if unset or invalid.
func (c *Config) SubmitRateWindow() time.Duration {
	return parseDuration(c.SubmitRateWindowRaw, time.Hour)
}

// OTPExpiry returns OTPExpiryMinutes as a duration.
func (c *Config) OTPExpiry() time.Duration {
	return time.Duration(c.OTPExpiryMinutes) * time.Minute
}

// AllowedValues returns the normalized allowed attribute values.
func (c *Config) AllowedValues() []string {
	return splitList(strings.ToLower(c.AllowedValuesRaw))
}

// EventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the producer.
func (c *Config) EventsKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.EventsKafkaBrokers)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
