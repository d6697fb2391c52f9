package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server         ServerConfig
	App            AppConfig
	Cache          CacheConfig
	Database       DatabaseConfig
	CollectiblesDB CollectiblesDBConfig
	Roblox         RobloxConfig
	Scanner        ScannerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"hoardwatch-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LoginKey    string `envconfig:"LOGIN_KEY" default:""` // Admin dashboard login key
}

// CacheConfig holds Redis settings for the token store and lookup cache.
type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig holds MySQL connection settings (for api_accounts).
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"hoardwatch"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// CollectiblesDBConfig holds settings for the collectibles store
// (items, holders, snapshots, price history).
type CollectiblesDBConfig struct {
	Type string `envconfig:"COLLECTIBLES_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"COLLECTIBLES_DB_PATH" default:"./data/collectibles.db"`
	// PostgreSQL settings
	Host     string `envconfig:"COLLECTIBLES_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"COLLECTIBLES_DB_PORT" default:"5432"`
	Name     string `envconfig:"COLLECTIBLES_DB_NAME" default:"hoardwatch"`
	User     string `envconfig:"COLLECTIBLES_DB_USER" default:"postgres"`
	Password string `envconfig:"COLLECTIBLES_DB_PASS" default:""`
	SSLMode  string `envconfig:"COLLECTIBLES_DB_SSLMODE" default:"disable"`
	// PriceRetention bounds how long RAP history rows are kept.
	PriceRetention time.Duration `envconfig:"PRICE_RETENTION" default:"2160h"` // 90 days
}

// RobloxConfig holds the upstream API endpoints and credentials.
type RobloxConfig struct {
	OwnersBaseURL     string        `envconfig:"ROBLOX_OWNERS_URL" default:"https://inventory.roblox.com/v2/assets"`
	InventoryBaseURL  string        `envconfig:"ROBLOX_INVENTORY_URL" default:"https://inventory.roblox.com/v1/users"`
	UsersBaseURL      string        `envconfig:"ROBLOX_USERS_URL" default:"https://users.roblox.com/v1/users"`
	ThumbnailsBaseURL string        `envconfig:"ROBLOX_THUMBNAILS_URL" default:"https://thumbnails.roblox.com/v1"`
	CatalogBaseURL    string        `envconfig:"ROBLOX_CATALOG_URL" default:"https://catalog.roblox.com/v1"`
	SecurityCookie    string        `envconfig:"ROBLOX_SECURITY_COOKIE" default:""`
	RequestTimeout    time.Duration `envconfig:"ROBLOX_REQUEST_TIMEOUT" default:"30s"`
}

// ScannerConfig holds the pacing and lifecycle knobs of the owner scan
// pipeline. The delays keep the crawler under the upstream rate limit;
// tests inject near-zero values.
type ScannerConfig struct {
	ColdStartDelay time.Duration `envconfig:"SCAN_COLD_START_DELAY" default:"3s"`
	PageDelay      time.Duration `envconfig:"SCAN_PAGE_DELAY" default:"2500ms"`
	HolderDelay    time.Duration `envconfig:"SCAN_HOLDER_DELAY" default:"2500ms"`
	EmptyPollDelay time.Duration `envconfig:"SCAN_EMPTY_POLL_DELAY" default:"500ms"`
	RateLimitFloor time.Duration `envconfig:"SCAN_RATE_LIMIT_FLOOR" default:"30s"`
	CleanupGrace   time.Duration `envconfig:"SCAN_CLEANUP_GRACE" default:"60s"`
	PageLimit      int           `envconfig:"SCAN_PAGE_LIMIT" default:"100"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *CollectiblesDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
