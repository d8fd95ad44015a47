// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs the service on in-memory stores (dev only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// CountryCode is the calling code applied to national numbers (e.g. "225").
	CountryCode string `mapstructure:"COUNTRY_CODE"`
	// Timezone is the IANA zone used for the hour-of-day bucket when the client sends none.
	Timezone string `mapstructure:"TIMEZONE"`

	// STTBaseURL is the speech-to-text service base URL. Empty disables audio capture.
	STTBaseURL string `mapstructure:"STT_BASE_URL"`
	// STTClientID and STTClientSecret are exchanged for a bearer token at STTBaseURL/oauth/token.
	STTClientID     string `mapstructure:"STT_CLIENT_ID"`
	STTClientSecret string `mapstructure:"STT_CLIENT_SECRET"`
	// STTTimeout bounds a single transcription call (e.g. "8s").
	STTTimeout string `mapstructure:"STT_TIMEOUT"`

	// PushBaseURL is the push-notification gateway endpoint used to alert agents.
	PushBaseURL string `mapstructure:"PUSH_BASE_URL"`
	// PushAPIKey is sent as the Authorization header to the push gateway.
	PushAPIKey string `mapstructure:"PUSH_API_KEY"`
	// SMSLocalAPIKey enables SMS fallback to agent phones when push delivery fails.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// RealtimeMode selects how validation changes reach waiting clients: poll, pg or redis.
	RealtimeMode string `mapstructure:"REALTIME_MODE"`
	// RedisURL is required when RealtimeMode is redis.
	RedisURL string `mapstructure:"REDIS_URL"`
	// PollInterval is the store polling period for RealtimeMode=poll (e.g. "2s").
	PollInterval string `mapstructure:"POLL_INTERVAL"`
	// ValidationTTL is how long an escalation stays approvable (e.g. "30m").
	ValidationTTL string `mapstructure:"VALIDATION_TTL"`
	// ValidationCodeReturnToClient exposes validation codes at GET /dev/validations/{id}/code.
	// Must not be true when Env is production.
	ValidationCodeReturnToClient bool `mapstructure:"VALIDATION_CODE_RETURN_TO_CLIENT"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file for session tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTL is the session token lifetime (e.g. "12h").
	SessionTTL string `mapstructure:"SESSION_TTL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty disables the event stream.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// DecisionKafkaTopic is the topic for authentication decision events.
	DecisionKafkaTopic string `mapstructure:"DECISION_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker pushes decision events (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// CORSAllowedOrigins is a comma-separated origin allow list; "*" allows any.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
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
	v.SetDefault("COUNTRY_CODE", "225")
	v.SetDefault("TIMEZONE", "Africa/Abidjan")
	v.SetDefault("STT_BASE_URL", "")
	v.SetDefault("STT_CLIENT_ID", "")
	v.SetDefault("STT_CLIENT_SECRET", "")
	v.SetDefault("STT_TIMEOUT", "8s")
	v.SetDefault("PUSH_BASE_URL", "")
	v.SetDefault("PUSH_API_KEY", "")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("REALTIME_MODE", "poll")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("POLL_INTERVAL", "2s")
	v.SetDefault("VALIDATION_TTL", "30m")
	v.SetDefault("VALIDATION_CODE_RETURN_TO_CLIENT", false)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "voice-auth")
	v.SetDefault("JWT_AUDIENCE", "merchant-app")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("DECISION_KAFKA_TOPIC", "voice-auth-decisions")
	v.SetDefault("KAFKA_GROUP_ID", "voice-auth-event-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.ValidationCodeReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: VALIDATION_CODE_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	cfg.CountryCode = strings.TrimPrefix(strings.TrimSpace(cfg.CountryCode), "+")
	if cfg.CountryCode == "" {
		return nil, errors.New("config: COUNTRY_CODE must be set")
	}
	for _, r := range cfg.CountryCode {
		if r < '0' || r > '9' {
			return nil, errors.New("config: COUNTRY_CODE must contain digits only")
		}
	}
	switch cfg.RealtimeMode {
	case "poll", "pg", "redis":
	default:
		return nil, errors.New("config: REALTIME_MODE must be poll, pg or redis")
	}
	if cfg.RealtimeMode == "redis" && cfg.RedisURL == "" {
		return nil, errors.New("config: REDIS_URL must be set when REALTIME_MODE=redis")
	}
	if cfg.RealtimeMode == "pg" && cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set when REALTIME_MODE=pg")
	}

	return &cfg, nil
}

// Location returns the configured time zone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// STTCallTimeout parses STTTimeout. Returns 8s if unset or invalid.
func (c *Config) STTCallTimeout() time.Duration {
	return parseDuration(c.STTTimeout, 8*time.Second)
}

// PollEvery parses PollInterval. Returns 2s if unset or invalid.
func (c *Config) PollEvery() time.Duration {
	return parseDuration(c.PollInterval, 2*time.Second)
}

// ValidationLifetime parses ValidationTTL. Returns 30m if unset or invalid.
func (c *Config) ValidationLifetime() time.Duration {
	return parseDuration(c.ValidationTTL, 30*time.Minute)
}

// SessionLifetime parses SessionTTL. Returns 12h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseDuration(c.SessionTTL, 12*time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the decision event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins returns the CORS allow list.
func (c *Config) AllowedOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
