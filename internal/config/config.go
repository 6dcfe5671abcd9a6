package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DateLayout is the layout used for configured dates
const DateLayout = "2006-01-02"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Forecast   ForecastConfig   `yaml:"forecast"`
	Currency   CurrencyConfig   `yaml:"currency"`
	Cache      CacheConfig      `yaml:"cache"`
	Session    SessionConfig    `yaml:"session"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL configuration. An empty Host disables the store.
type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MigrationsPath string `yaml:"migrations_path"`
}

// KafkaConfig holds Kafka configuration. No brokers disables events.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// RedisConfig holds Redis configuration for the shared history cache
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MarketDataConfig holds the history feed configuration
type MarketDataConfig struct {
	Source    string        `yaml:"source"`
	BaseURL   string        `yaml:"base_url"`
	StartDate string        `yaml:"start_date"`
	Tickers   []string      `yaml:"tickers"`
	Timeout   time.Duration `yaml:"timeout"`
	Proxy     string        `yaml:"proxy"`
}

// Start parses StartDate
func (m MarketDataConfig) Start() (time.Time, error) {
	return time.Parse(DateLayout, m.StartDate)
}

// ForecastConfig holds the horizon bounds in years
type ForecastConfig struct {
	MinYears int `yaml:"min_years"`
	MaxYears int `yaml:"max_years"`
}

// CurrencyConfig holds the currency converter API configuration
type CurrencyConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	ListTTL time.Duration `yaml:"list_ttl"`
}

// CacheConfig selects the history cache backend
type CacheConfig struct {
	Backend  string `yaml:"backend"`
	Capacity int    `yaml:"capacity"`
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// RecorderConfig holds the conversion audit log configuration. Empty path disables it.
type RecorderConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// SchedulerConfig holds the cron specs for the daily cache refresh and the
// session sweep. Specs include a seconds field.
type SchedulerConfig struct {
	RefreshCron string `yaml:"refresh_cron"`
	SweepCron   string `yaml:"sweep_cron"`
	Prewarm     bool   `yaml:"prewarm"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env string `yaml:"env"`
}

// Load reads configuration from an optional .env file, an optional YAML file at
// CONFIG_PATH and finally environment variables, which take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Database: DatabaseConfig{
			Port:           "5432",
			User:           "postgres",
			Password:       "postgres",
			DBName:         "stocksdaily",
			SSLMode:        "disable",
			MigrationsPath: "db/migrations",
		},
		Kafka: KafkaConfig{Topic: "stock-events", GroupID: "stocks-daily"},
		MarketData: MarketDataConfig{
			Source:    "yahoo",
			BaseURL:   "https://query1.finance.yahoo.com",
			StartDate: "2015-01-01",
			Tickers:   []string{"FB", "AMZN", "AAPL", "MSFT", "GOOG"},
			Timeout:   30 * time.Second,
		},
		Forecast: ForecastConfig{MinYears: 1, MaxYears: 7},
		Currency: CurrencyConfig{
			BaseURL: "https://free.currconv.com/api/v7",
			Timeout: 10 * time.Second,
			ListTTL: time.Hour,
		},
		Cache:     CacheConfig{Backend: "memory", Capacity: 16},
		Session:   SessionConfig{TTL: 2 * time.Hour},
		Scheduler: SchedulerConfig{RefreshCron: "0 5 0 * * *", SweepCron: "0 */15 * * * *", Prewarm: true},
		Log:       LogConfig{Env: "development"},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", c.Database.MigrationsPath)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.MarketData.Source = getEnv("MARKET_DATA_SOURCE", c.MarketData.Source)
	c.MarketData.BaseURL = getEnv("MARKET_DATA_BASE_URL", c.MarketData.BaseURL)
	c.MarketData.StartDate = getEnv("MARKET_DATA_START", c.MarketData.StartDate)
	c.MarketData.Tickers = getEnvList("TICKERS", c.MarketData.Tickers)
	for i, t := range c.MarketData.Tickers {
		c.MarketData.Tickers[i] = strings.ToUpper(t)
	}
	c.MarketData.Timeout = getEnvDuration("MARKET_DATA_TIMEOUT", c.MarketData.Timeout)
	c.MarketData.Proxy = getEnv("HTTPS_PROXY", c.MarketData.Proxy)

	c.Forecast.MinYears = getEnvInt("FORECAST_MIN_YEARS", c.Forecast.MinYears)
	c.Forecast.MaxYears = getEnvInt("FORECAST_MAX_YEARS", c.Forecast.MaxYears)

	c.Currency.BaseURL = getEnv("CURRENCY_BASE_URL", c.Currency.BaseURL)
	c.Currency.APIKey = getEnv("CURRENCY_API_KEY", c.Currency.APIKey)
	c.Currency.Timeout = getEnvDuration("CURRENCY_TIMEOUT", c.Currency.Timeout)
	c.Currency.ListTTL = getEnvDuration("CURRENCY_LIST_TTL", c.Currency.ListTTL)

	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Capacity = getEnvInt("CACHE_CAPACITY", c.Cache.Capacity)

	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)
	c.Recorder.SQLitePath = getEnv("SQLITE_PATH", c.Recorder.SQLitePath)

	c.Scheduler.RefreshCron = getEnv("CRON_REFRESH", c.Scheduler.RefreshCron)
	c.Scheduler.SweepCron = getEnv("CRON_SESSION_SWEEP", c.Scheduler.SweepCron)
	if v := os.Getenv("CACHE_PREWARM"); v != "" {
		c.Scheduler.Prewarm = v == "true"
	}

	c.Log.Env = getEnv("APP_ENV", c.Log.Env)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := c.MarketData.Start(); err != nil {
		return fmt.Errorf("market_data.start_date must be YYYY-MM-DD: %w", err)
	}
	if len(c.MarketData.Tickers) == 0 {
		return fmt.Errorf("market_data.tickers must not be empty")
	}
	switch c.MarketData.Source {
	case "yahoo", "mock":
	default:
		return fmt.Errorf("market_data.source must be yahoo or mock, got %q", c.MarketData.Source)
	}
	if c.Forecast.MinYears < 1 || c.Forecast.MaxYears < c.Forecast.MinYears {
		return fmt.Errorf("forecast years must satisfy 1 <= min <= max, got %d..%d",
			c.Forecast.MinYears, c.Forecast.MaxYears)
	}
	switch c.Cache.Backend {
	case "memory":
		if c.Cache.Capacity <= 0 {
			return fmt.Errorf("cache.capacity must be positive")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Enabled reports whether a database host is configured
func (d *DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
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
