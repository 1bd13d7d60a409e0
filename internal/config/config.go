package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"registrar/internal/photo"
	"registrar/internal/store"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env  string `mapstructure:"APP_ENV"`
	Port string `mapstructure:"PORT"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBHost       string `mapstructure:"DB_HOST"`
	DBPort       string `mapstructure:"DB_PORT"`
	DBUser       string `mapstructure:"DB_USER"`
	DBPassword   string `mapstructure:"DB_PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	DBSSLMode    string `mapstructure:"DB_SSLMODE"`
	SQLitePath   string `mapstructure:"SQLITE_PATH"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	UploadDir      string `mapstructure:"UPLOAD_DIR"`
	PublicDir      string `mapstructure:"PUBLIC_DIR"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	RateLimitPerMin int `mapstructure:"RATE_LIMIT_PER_MIN"`

	AdminPassword string        `mapstructure:"ADMIN_PASSWORD"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTSigningKey string        `mapstructure:"JWT_SIGNING_KEY"`
	AccessTTL     time.Duration `mapstructure:"ACCESS_TTL"`
}

var defaults = map[string]any{
	"APP_ENV":            "dev",
	"PORT":               "5000",
	"STORE_BACKEND":      store.BackendPostgres,
	"DATABASE_URL":       "",
	"DB_HOST":            "localhost",
	"DB_PORT":            "",
	"DB_USER":            "registrar",
	"DB_PASSWORD":        "registrar",
	"DB_NAME":            "registrations",
	"DB_SSLMODE":         "disable",
	"SQLITE_PATH":        "./registrations.db",
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"UPLOAD_DIR":         "./uploads",
	"PUBLIC_DIR":         "./public",
	"MAX_UPLOAD_BYTES":   photo.DefaultMaxBytes,
	"RATE_LIMIT_PER_MIN": 0,
	"ADMIN_PASSWORD":     "",
	"JWT_ISSUER":         "registrar",
	"JWT_SIGNING_KEY":    "dev-signing-secret-change",
	"ACCESS_TTL":         12 * time.Hour,
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() (App, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key); err != nil {
			return App{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg App
	if err := v.Unmarshal(&cfg); err != nil {
		return App{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.DBPort == "" {
		cfg.DBPort = defaultPort(cfg.StoreBackend)
	}
	return cfg, cfg.validate()
}

func (c App) validate() error {
	switch c.StoreBackend {
	case store.BackendPostgres, store.BackendMySQL, store.BackendSQLite, store.BackendRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of postgres, mysql, sqlite, redis; got %q", c.StoreBackend)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// Production reports whether the app runs in a production environment.
func (c App) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// AdminProtected reports whether the admin API requires a bearer token.
func (c App) AdminProtected() bool {
	return c.AdminPassword != ""
}

// DSN returns the relational connection string for the configured backend.
func (c App) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	switch c.StoreBackend {
	case store.BackendPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DBUser, c.DBPassword),
			Host:     net.JoinHostPort(c.DBHost, c.DBPort),
			Path:     "/" + c.DBName,
			RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
		}
		return u.String()
	case store.BackendMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
			c.DBUser, c.DBPassword, net.JoinHostPort(c.DBHost, c.DBPort), c.DBName)
	case store.BackendSQLite:
		return store.SQLiteDSN(c.SQLitePath)
	}
	return ""
}

// StoreOptions maps the config onto store.Open options.
func (c App) StoreOptions() store.Options {
	return store.Options{
		Backend:       c.StoreBackend,
		DSN:           c.DSN(),
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

func defaultPort(backend string) string {
	switch backend {
	case store.BackendMySQL:
		return "3306"
	case store.BackendPostgres:
		return "5432"
	}
	return ""
}
