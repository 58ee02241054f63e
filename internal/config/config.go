// Package config defines the process configuration for subtrack.
//
// Values are resolved once at startup from the OS environment, falling back to
// a .env file in the working directory. Invalid values fail startup.
package config

import "time"

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverPostgres  = "postgres"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
	DriverSQLite    = "sqlite"
	DriverMySQL     = "mysql"
)

// DefaultTable is the accounts table the bundled schema creates.
const DefaultTable = "profiles"

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	Server  ServerConfig
	Stripe  StripeConfig
	Store   StoreConfig
	Cache   CacheConfig
	Breaker BreakerConfig
	Notify  NotifyConfig
	Metrics MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// RateLimitRequests per RateLimitWindow per client IP on the webhook; 0 disables.
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"0" validate:"gte=0"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	TrustForwardedFor bool          `envconfig:"TRUST_FORWARDED_FOR" default:"false"`

	// CORSOrigin enables CORS on /checkout for a browser front end.
	CORSOrigin string `envconfig:"CORS_ORIGIN" validate:"omitempty,url"`
}

// StripeConfig holds payment provider settings. A missing webhook secret is
// not a startup error: deliveries are rejected until it is set.
type StripeConfig struct {
	WebhookSecret      SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SecretKey          SecretString  `envconfig:"STRIPE_SECRET_KEY"`
	SignatureTolerance time.Duration `envconfig:"STRIPE_SIGNATURE_TOLERANCE" default:"5m"`
	MaxBodyBytes       int64         `envconfig:"WEBHOOK_MAX_BODY_BYTES" default:"262144" validate:"gt=0"`
	NormalizeEmail     bool          `envconfig:"NORMALIZE_EMAIL" default:"false"`
}

// StoreConfig selects and configures the account store.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"memory" validate:"oneof=memory postgres redis firestore sqlite mysql"`

	// URL is the DSN for postgres, mysql and redis.
	URL SecretString `envconfig:"DATABASE_URL"`

	// Table is the accounts table (postgres, sqlite, mysql) or collection (firestore).
	Table              string `envconfig:"PROFILES_TABLE" default:"profiles" validate:"required"`
	SQLitePath         string `envconfig:"SQLITE_PATH" default:"subtrack.db"`
	FirestoreProjectID string `envconfig:"FIRESTORE_PROJECT_ID"`
	AutoMigrate        bool   `envconfig:"AUTO_MIGRATE" default:"false"`
}

// CacheConfig puts a Redis read-through cache in front of the store.
type CacheConfig struct {
	RedisURL    SecretString `envconfig:"CACHE_REDIS_URL"`
	AsyncMirror bool         `envconfig:"CACHE_ASYNC_MIRROR" default:"true"`
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `envconfig:"CIRCUIT_BREAKER_ENABLED" default:"true"`
	Implementation   string        `envconfig:"CIRCUIT_BREAKER_IMPL" default:"gobreaker" validate:"oneof=gobreaker builtin"`
	FailureThreshold int           `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5" validate:"gt=0"`
	ResetTimeout     time.Duration `envconfig:"CIRCUIT_BREAKER_TIMEOUT" default:"30s"`
}

// NotifyConfig enables grant notifications on SQS.
type NotifyConfig struct {
	GrantQueueURL string `envconfig:"SQS_GRANT_QUEUE_URL" validate:"omitempty,url"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`
	SkipRepeats   bool   `envconfig:"SQS_SKIP_REPEATS" default:"true"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"subtrack"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// IsLocal reports whether the process runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
