package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zerolog level name

	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	DBMigrate bool   // apply embedded migrations at startup

	AccessSecret  string        // secret used to sign access tokens
	RefreshSecret string        // secret used to sign refresh tokens
	AccessTTL     time.Duration // access token lifetime
	RefreshTTL    time.Duration // refresh token lifetime, also the cookie max-age
	BcryptCost    int           // bcrypt cost for password hashing

	AMQPURL        string // broker URL; empty disables event publishing
	EventsConsumer bool   // run the todo.events audit consumer in-process
	EventsLogDir   string // directory the consumer appends to
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Load reads configuration values from the environment, after merging a
// .env file when one exists.  Every missing required variable is reported
// in the returned error.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional; real env vars take precedence

	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:      getenv("APP_ENV", "dev"),
		Port:     getenv("APP_PORT", "3000"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"), // empty allowed
		DBHost:    must("DB_HOST"),
		DBPort:    getenv("DB_PORT", "3306"),
		DBName:    must("DB_NAME"),
		DBMigrate: envBool("DB_MIGRATE", true),

		AccessSecret:  must("ACCESS_TOKEN_SECRET"),
		RefreshSecret: must("REFRESH_TOKEN_SECRET"),
		AccessTTL:     envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:    envDur("REFRESH_TOKEN_TTL", 24*time.Hour),
		BcryptCost:    envInt("BCRYPT_COST", 10),

		AMQPURL:        firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
		EventsConsumer: envBool("EVENTS_CONSUMER", false),
		EventsLogDir:   getenv("EVENTS_LOG_DIR", "logs"),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid BCRYPT_COST %d", c.BcryptCost)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
