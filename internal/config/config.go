package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the portal auth service.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Auth          AuthConfig
	Identity      IdentityConfig
	SMS           SMSConfig
	OtpAuthority  OtpAuthorityConfig
	CustomerAPI   CustomerAPIConfig
	Consent       ConsentConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
}

type ServerConfig struct {
	Port           int
	TLSPort        int
	EnableTLS      bool
	AutoCert       bool
	Domain         string
	CertFile       string
	KeyFile        string
	AutoCertDir    string
	Email          string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	TrustProxy     bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig is optional; an empty URL selects the in-memory stores.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

func (r RedisConfig) Enabled() bool { return r.URL != "" }

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
	UseTLS   bool
	CAPath   string
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
}

type ElasticsearchConfig struct {
	Enabled    bool
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

// KMSConfig selects how session PII is encrypted. LocalKey is a base64 AES-256
// master key used when KMS is disabled; every instance sharing a Redis must
// carry the same one.
type KMSConfig struct {
	Enabled  bool
	KeyID    string
	Region   string
	LocalKey string
}

type HashingConfig struct {
	// Pepper pins a shared pepper for multi-instance deployments and disables rotation.
	Pepper             string
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

type BucketingConfig struct {
	LockStripes  int
	EventBuckets int
}

// AuthConfig drives the OTP state machine.
type AuthConfig struct {
	OtpTTL              time.Duration
	AttemptCeiling      int
	AutoResendOnLockout bool
	CaptchaLength       int
	ChallengeTTL        time.Duration
	TokenTTL            time.Duration
	SessionIdleTTL      time.Duration
	ResendCooldown      time.Duration // zero disables the cooldown
	OtpMode             string        // "local" or "authority"
	OtpEchoEnabled      bool
	CookieName          string
	CountryCode         string
}

type IdentityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type SMSConfig struct {
	Provider string // "http" or "log"
	BaseURL  string
	Username string
	Password string
	SenderID string
	Template string
	Timeout  time.Duration
}

type OtpAuthorityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type CustomerAPIConfig struct {
	BaseURL string
	Timeout time.Duration
	// Codes holds the per-endpoint function keys, keyed by endpoint path.
	Codes map[string]string
}

type ConsentConfig struct {
	FormID string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleEviction      time.Duration
}

type AuditConfig struct {
	BufferSize int
}

const (
	OtpModeLocal     = "local"
	OtpModeAuthority = "authority"
)

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			TLSPort:        getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:      getEnvBool("ENABLE_TLS", false),
			AutoCert:       getEnvBool("AUTO_CERT", false),
			Domain:         getEnv("DOMAIN", "localhost"),
			CertFile:       getEnv("TLS_CERT_FILE", ""),
			KeyFile:        getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:    getEnv("AUTOCERT_DIR", "./certs"),
			Email:          getEnv("ACME_EMAIL", ""),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*"}),
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Nodes:    getEnvList("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "portal"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			UseTLS:   getEnvBool("SCYLLA_TLS", false),
			CAPath:   getEnv("SCYLLA_CA_PATH", ""),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", false),
			Brokers:    getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "portal.auth.events"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:    getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "portal-auth-events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "portal"),
			Table:    getEnv("CLICKHOUSE_AUDIT_TABLE", "auth_events"),
		},
		KMS: KMSConfig{
			Enabled:  getEnvBool("KMS_ENABLED", false),
			KeyID:    getEnv("KMS_KEY_ID", ""),
			Region:   getEnv("AWS_REGION", "eu-central-1"),
			LocalKey: getEnv("SESSION_ENCRYPTION_KEY", ""),
		},
		Hashing: HashingConfig{
			Pepper:             getEnv("OTP_PEPPER", ""),
			Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 19456),
			Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 2),
			Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 1),
			PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 30),
		},
		Bucketing: BucketingConfig{
			LockStripes:  getEnvInt("SESSION_LOCK_STRIPES", 1024),
			EventBuckets: getEnvInt("AUDIT_EVENT_BUCKETS", 64),
		},
		Auth: AuthConfig{
			OtpTTL:              getEnvDuration("OTP_TTL", 5*time.Minute),
			AttemptCeiling:      getEnvInt("OTP_ATTEMPT_CEILING", 3),
			AutoResendOnLockout: getEnvBool("AUTO_RESEND_ON_LOCKOUT", false),
			CaptchaLength:       getEnvInt("CAPTCHA_LENGTH", 5),
			ChallengeTTL:        getEnvDuration("CAPTCHA_TTL", 5*time.Minute),
			TokenTTL:            getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
			SessionIdleTTL:      getEnvDuration("SESSION_IDLE_TTL", 15*time.Minute),
			ResendCooldown:      getEnvDuration("OTP_RESEND_COOLDOWN", 0),
			OtpMode:             getEnv("OTP_MODE", OtpModeLocal),
			OtpEchoEnabled:      getEnvBool("OTP_ECHO_ENABLED", false),
			CookieName:          getEnv("SESSION_COOKIE_NAME", "portal_sid"),
			CountryCode:         getEnv("PHONE_COUNTRY_CODE", "90"),
		},
		Identity: IdentityConfig{
			BaseURL: getEnv("IDENTITY_API_URL", ""),
			APIKey:  getEnv("IDENTITY_API_KEY", ""),
			Timeout: getEnvDuration("IDENTITY_API_TIMEOUT", 5*time.Second),
		},
		SMS: SMSConfig{
			Provider: getEnv("SMS_PROVIDER", "log"),
			BaseURL:  getEnv("SMS_API_URL", ""),
			Username: getEnv("SMS_API_USERNAME", ""),
			Password: getEnv("SMS_API_PASSWORD", ""),
			SenderID: getEnv("SMS_SENDER_ID", "PORTAL"),
			Template: getEnv("SMS_OTP_TEMPLATE", "Your verification code is {code}. It is valid for 5 minutes."),
			Timeout:  getEnvDuration("SMS_API_TIMEOUT", 10*time.Second),
		},
		OtpAuthority: OtpAuthorityConfig{
			BaseURL: getEnv("OTP_AUTHORITY_URL", ""),
			APIKey:  getEnv("OTP_AUTHORITY_API_KEY", ""),
			Timeout: getEnvDuration("OTP_AUTHORITY_TIMEOUT", 5*time.Second),
		},
		CustomerAPI: CustomerAPIConfig{
			BaseURL: getEnv("CUSTOMER_API_URL", ""),
			Timeout: getEnvDuration("CUSTOMER_API_TIMEOUT", 10*time.Second),
			Codes: map[string]string{
				"addressfull":    getEnv("CUSTOMER_API_CODE_ADDRESS_GET", ""),
				"address":        getEnv("CUSTOMER_API_CODE_ADDRESS_SAVE", ""),
				"job-infonew":    getEnv("CUSTOMER_API_CODE_JOB_GET", ""),
				"job-profile":    getEnv("CUSTOMER_API_CODE_JOB_SAVE", ""),
				"wife-info":      getEnv("CUSTOMER_API_CODE_SPOUSE", ""),
				"finance-assets": getEnv("CUSTOMER_API_CODE_FINANCE", ""),
			},
		},
		Consent: ConsentConfig{
			FormID: getEnv("KVKK_CONSENT_FORM_ID", "kvkk-v1"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 2),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 10),
			IdleEviction:      getEnvDuration("RATE_LIMIT_IDLE_EVICTION", 10*time.Minute),
		},
		Audit: AuditConfig{
			BufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 1024),
		},
	}

	return cfg
}

// Validate rejects configurations that would be unsafe or unusable.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AttemptCeiling < 1 {
		errs = append(errs, errors.New("OTP_ATTEMPT_CEILING must be at least 1"))
	}
	if c.Auth.OtpTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.Auth.CaptchaLength < 4 || c.Auth.CaptchaLength > 8 {
		errs = append(errs, fmt.Errorf("CAPTCHA_LENGTH must be between 4 and 8, got %d", c.Auth.CaptchaLength))
	}
	switch c.Auth.OtpMode {
	case OtpModeLocal:
	case OtpModeAuthority:
		if c.OtpAuthority.BaseURL == "" {
			errs = append(errs, errors.New("OTP_AUTHORITY_URL is required when OTP_MODE=authority"))
		}
		if c.Auth.OtpEchoEnabled {
			errs = append(errs, errors.New("OTP_ECHO_ENABLED cannot be used with OTP_MODE=authority"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OTP_MODE %q", c.Auth.OtpMode))
	}
	if c.SMS.Provider == "http" && c.SMS.BaseURL == "" {
		errs = append(errs, errors.New("SMS_API_URL is required when SMS_PROVIDER=http"))
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		errs = append(errs, errors.New("KMS_KEY_ID is required when KMS is enabled"))
	}
	if c.KMS.LocalKey != "" {
		if key, err := base64.StdEncoding.DecodeString(c.KMS.LocalKey); err != nil || len(key) != 32 {
			errs = append(errs, errors.New("SESSION_ENCRYPTION_KEY must be 32 bytes, base64 encoded"))
		}
	}
	// codes and sessions in a shared Redis must be readable by every instance
	if c.Redis.Enabled() {
		if c.Hashing.Pepper == "" {
			errs = append(errs, errors.New("OTP_PEPPER is required when REDIS_URL is set"))
		}
		if !c.KMS.Enabled && c.KMS.LocalKey == "" {
			errs = append(errs, errors.New("KMS_ENABLED or SESSION_ENCRYPTION_KEY is required when REDIS_URL is set"))
		}
	}
	if c.Bucketing.LockStripes < 1 || c.Bucketing.EventBuckets < 1 {
		errs = append(errs, errors.New("bucket counts must be positive"))
	}

	if c.IsProduction() {
		if c.Auth.OtpEchoEnabled {
			errs = append(errs, errors.New("OTP_ECHO_ENABLED must never be set in production"))
		}
		if c.Identity.BaseURL == "" {
			errs = append(errs, errors.New("IDENTITY_API_URL is required in production"))
		}
		if c.SMS.Provider != "http" && c.Auth.OtpMode == OtpModeLocal {
			errs = append(errs, errors.New("SMS_PROVIDER=http is required in production"))
		}
		if !c.Server.EnableTLS && !c.Server.TrustProxy {
			errs = append(errs, errors.New("production requires ENABLE_TLS or TRUST_PROXY behind a TLS terminator"))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.Server.EnableTLS || c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
