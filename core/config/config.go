package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// SendRetries bounds retries of a single outbound reply.
	SendRetries int `yaml:"send_retries" envconfig:"TELEGRAM_SEND_RETRIES"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	DebugSample int    `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	File        string `yaml:"file" envconfig:"LOG_FILE"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds the minimum interval between two messages of one user.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	// ExcludeUpdates lists update kinds (message, callback, inline_query) never limited.
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE"`
}

// WeatherConfig describes the weather provider.
type WeatherConfig struct {
	APIKey            string  `yaml:"api_key" envconfig:"WEATHER_API_KEY"`
	BaseURL           string  `yaml:"base_url" envconfig:"WEATHER_BASE_URL"`
	Units             string  `yaml:"units" envconfig:"WEATHER_UNITS"`
	Lang              string  `yaml:"lang" envconfig:"WEATHER_LANG"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" envconfig:"WEATHER_TIMEOUT_SECONDS"`
	RequestsPerSecond float64 `yaml:"requests_per_second" envconfig:"WEATHER_RPS"`
	Burst             int     `yaml:"burst" envconfig:"WEATHER_BURST"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// SQLiteConfig holds the SQLite database file location.
type SQLiteConfig struct {
	Path string `yaml:"path" envconfig:"SQLITE_PATH"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr       string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password   string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB         int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix     string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"REDIS_TTL_SECONDS"`
}

// SessionConfig selects and configures the session store.
type SessionConfig struct {
	Driver   string         `yaml:"driver" envconfig:"SESSION_DRIVER"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
}

// HealthConfig configures the HTTP health endpoint. Empty Listen disables it.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	SessionDriverMemory   = "memory"
	SessionDriverPostgres = "postgres"
	SessionDriverSQLite   = "sqlite"
	SessionDriverRedis    = "redis"
)

const (
	defaultWeatherBaseURL = "https://api.openweathermap.org"
	defaultWeatherUnits   = "metric"
	defaultWeatherLang    = "en"
	defaultWeatherTimeout = 5
	defaultWeatherRPS     = 5
	defaultRedisPrefix    = "weatherbot:session:"
	defaultSendRetries    = 2
)

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Weather   WeatherConfig   `yaml:"weather"`
	Session   SessionConfig   `yaml:"session"`
	Health    HealthConfig    `yaml:"health"`
}

// Load reads configuration from a YAML file, an optional .env file and environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if err := normalizeRunMode(cfg); err != nil {
		return err
	}
	if cfg.Telegram.SendRetries < 0 {
		return fmt.Errorf("telegram.send_retries must be >= 0")
	}
	if cfg.Telegram.SendRetries == 0 {
		cfg.Telegram.SendRetries = defaultSendRetries
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	if err := normalizeWeather(&cfg.Weather); err != nil {
		return err
	}
	return normalizeSession(&cfg.Session)
}

func normalizeRunMode(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeWeather(w *WeatherConfig) error {
	if strings.TrimSpace(w.APIKey) == "" {
		return fmt.Errorf("weather.api_key is required")
	}
	w.BaseURL = strings.TrimRight(strings.TrimSpace(w.BaseURL), "/")
	if w.BaseURL == "" {
		w.BaseURL = defaultWeatherBaseURL
	}
	switch u := strings.ToLower(strings.TrimSpace(w.Units)); u {
	case "":
		w.Units = defaultWeatherUnits
	case "metric", "imperial", "standard":
		w.Units = u
	default:
		return fmt.Errorf("invalid weather.units %q; allowed: metric, imperial, standard", w.Units)
	}
	if strings.TrimSpace(w.Lang) == "" {
		w.Lang = defaultWeatherLang
	}
	if w.TimeoutSeconds < 0 {
		return fmt.Errorf("weather.timeout_seconds must be >= 0")
	}
	if w.TimeoutSeconds == 0 {
		w.TimeoutSeconds = defaultWeatherTimeout
	}
	if w.RequestsPerSecond < 0 {
		return fmt.Errorf("weather.requests_per_second must be >= 0")
	}
	if w.RequestsPerSecond == 0 {
		w.RequestsPerSecond = defaultWeatherRPS
	}
	if w.Burst <= 0 {
		w.Burst = int(w.RequestsPerSecond)
		if w.Burst < 1 {
			w.Burst = 1
		}
	}
	return nil
}

func normalizeSession(s *SessionConfig) error {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" {
		driver = SessionDriverMemory
	}
	switch driver {
	case SessionDriverMemory:
	case SessionDriverPostgres:
		if strings.TrimSpace(s.Postgres.Host) == "" || strings.TrimSpace(s.Postgres.Name) == "" {
			return fmt.Errorf("session.postgres.host and session.postgres.name are required for the postgres driver")
		}
		if s.Postgres.Port == "" {
			s.Postgres.Port = "5432"
		}
		if s.Postgres.SSLMode == "" {
			s.Postgres.SSLMode = "disable"
		}
		if s.Postgres.MaxConnections <= 0 {
			s.Postgres.MaxConnections = 5
		}
	case SessionDriverSQLite:
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("session.sqlite.path is required for the sqlite driver")
		}
	case SessionDriverRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.addr is required for the redis driver")
		}
		if s.Redis.Prefix == "" {
			s.Redis.Prefix = defaultRedisPrefix
		}
		if s.Redis.TTLSeconds < 0 {
			return fmt.Errorf("session.redis.ttl_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid session.driver %q; allowed: memory, postgres, sqlite, redis", s.Driver)
	}
	s.Driver = driver
	return nil
}

// CoreConfig returns c; it lets the runner treat *Config as a config carrier.
func (c *Config) CoreConfig() *Config { return c }
