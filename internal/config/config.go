// Package config loads service settings from defaults, an optional config
// file, a .env file and SEOFORGE_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/pkg/httpclient"
)

// EnvPrefix is prepended to every key when read from the environment, with
// dots replaced by underscores: storage.driver -> SEOFORGE_STORAGE_DRIVER.
const EnvPrefix = "SEOFORGE"

const maxFetchTimeout = 150 * time.Second

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Workers      WorkersConfig      `mapstructure:"workers"`
	LLM          LLMConfig          `mapstructure:"llm"`
	PageSpeed    PageSpeedConfig    `mapstructure:"pagespeed"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Autocomplete AutocompleteConfig `mapstructure:"autocomplete"`
	LongTail     LongTailConfig     `mapstructure:"longtail"`
	API          APIConfig          `mapstructure:"api"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	// Port for the /metrics listener. 0 disables it.
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	Driver    string        `mapstructure:"driver"`
	DSN       string        `mapstructure:"dsn"`
	RedisURL  string        `mapstructure:"redis_url"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

type LLMConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PageSpeedConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Proxies           []string      `mapstructure:"proxies"`
	ProxyFile         string        `mapstructure:"proxy_file"`
}

type AutocompleteConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type LongTailConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
	MaxNodes int `mapstructure:"max_nodes"`
}

type APIConfig struct {
	// SubmissionsPerMinute caps job submissions per principal. 0 disables it.
	SubmissionsPerMinute int `mapstructure:"submissions_per_minute"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.result_ttl", time.Hour)

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 100)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("pagespeed.api_key", "")
	v.SetDefault("pagespeed.endpoint", "")
	v.SetDefault("pagespeed.timeout", 300*time.Second)

	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.fingerprint", string(httpclient.ProfileChrome))
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.proxies", []string{})
	v.SetDefault("fetch.proxy_file", "")

	v.SetDefault("autocomplete.timeout", 8*time.Second)
	v.SetDefault("autocomplete.concurrency", 8)

	v.SetDefault("longtail.max_depth", 3)
	v.SetDefault("longtail.max_nodes", 500)

	v.SetDefault("api.submissions_per_minute", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. A .env file in the working directory is loaded
// first when present; variables already set in the process win.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		logger.Debug("no .env file found, using process environment")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credential and connection names shared with other tooling.
	binds := map[string]string{
		"llm.api_key":       "GOOGLE_API_KEY",
		"pagespeed.api_key": "PAGESPEED_API_KEY",
		"storage.redis_url": "REDIS_URL",
		"storage.dsn":       "DATABASE_URL",
	}
	for key, env := range binds {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with. Missing API keys
// are not an error here; operations that need them fail on use.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{apperr.ErrConfiguration}, args...)...))
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		bad("invalid metrics port: %d", c.Metrics.Port)
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres", "json":
		if c.Storage.DSN == "" {
			bad("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			bad("storage.redis_url is required for the redis driver")
		}
	default:
		bad("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.ResultTTL < 0 {
		bad("storage.result_ttl must not be negative")
	}

	if c.Workers.Count <= 0 {
		bad("workers.count must be positive")
	}
	if c.Workers.QueueSize <= 0 {
		bad("workers.queue_size must be positive")
	}

	if c.Fetch.Timeout <= 0 || c.Fetch.Timeout > maxFetchTimeout {
		bad("fetch.timeout must be in (0, %s], got %s", maxFetchTimeout, c.Fetch.Timeout)
	}
	if _, err := httpclient.ParseProfile(c.Fetch.Fingerprint); err != nil {
		bad("fetch.fingerprint: %v", err)
	}
	if c.Fetch.RequestsPerSecond < 0 {
		bad("fetch.requests_per_second must not be negative")
	}

	if c.Autocomplete.Timeout <= 0 {
		bad("autocomplete.timeout must be positive")
	}
	if c.Autocomplete.Concurrency <= 0 {
		bad("autocomplete.concurrency must be positive")
	}
	if c.LongTail.MaxDepth <= 0 || c.LongTail.MaxNodes <= 0 {
		bad("longtail.max_depth and longtail.max_nodes must be positive")
	}
	if c.API.SubmissionsPerMinute < 0 {
		bad("api.submissions_per_minute must not be negative")
	}

	if _, err := c.Log.level(); err != nil {
		bad("log.level: %v", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		bad("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// NewLogger builds a slog logger writing to w in the configured format and
// level. Invalid values fall back to text at info.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
