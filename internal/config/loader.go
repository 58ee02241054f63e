package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType classifies configuration failures.
type ConfigErrorType string

const (
	ErrParsing    ConfigErrorType = "parsing"
	ErrValidation ConfigErrorType = "validation"
)

// ConfigError is returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads the configuration from the environment. files are optional
// dotenv files; with none given, .env in the working directory is tried.
// Existing environment variables always win over dotenv values.
func Load(files ...string) (*Config, error) {
	if err := loadDotenv(files); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to read dotenv file", Err: err}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		// Absent .env is normal outside local development.
		_ = godotenv.Load()
		return nil
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return err
		}
	}
	return godotenv.Load(files...)
}

// Validate checks struct tags and the driver-specific requirements tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	var errs []error
	switch c.Store.Driver {
	case DriverPostgres, DriverMySQL, DriverRedis:
		if !c.Store.URL.IsSet() {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required for store driver %q", c.Store.Driver))
		}
	case DriverFirestore:
		if c.Store.FirestoreProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID is required for store driver \"firestore\""))
		}
	}
	if c.Store.Table != DefaultTable {
		switch c.Store.Driver {
		case DriverMemory, DriverRedis:
			errs = append(errs, fmt.Errorf("PROFILES_TABLE is not supported by store driver %q", c.Store.Driver))
		case DriverPostgres:
			if c.Store.AutoMigrate {
				errs = append(errs, fmt.Errorf("AUTO_MIGRATE only creates the %q table; create PROFILES_TABLE %q by hand",
					DefaultTable, c.Store.Table))
			}
		}
	}
	if c.Cache.RedisURL.IsSet() && c.Store.Driver == DriverRedis {
		errs = append(errs, errors.New("CACHE_REDIS_URL cannot front a redis store"))
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return nil
}
