package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	PolicyFailFast = "fail-fast"
	PolicyPartial  = "partial"

	MuxFFmpeg = "ffmpeg"
	MuxConcat = "concat"

	// DefaultConcurrency is the worker count when none is configured.
	DefaultConcurrency = 10
)

var validExtension = regexp.MustCompile(`^[a-zA-Z0-9]{1,5}$`)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Mux      MuxConfig      `mapstructure:"mux" yaml:"mux"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir          string        `mapstructure:"out_dir" yaml:"out_dir"`
	ScratchDir      string        `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	FailurePolicy   string        `mapstructure:"failure_policy" yaml:"failure_policy"`
	RetryAttempts   int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RetryMaxBackoff time.Duration `mapstructure:"retry_max_backoff" yaml:"retry_max_backoff"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

type MuxConfig struct {
	Mode       string `mapstructure:"mode" yaml:"mode"`
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	Extension  string `mapstructure:"extension" yaml:"extension"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"` // "", "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

// Load reads the configuration. An empty path falls back to config.yaml in the
// working directory or /config/config.yaml; when neither exists the defaults
// and HLSGET_* environment variables are used on their own.
func Load(path string) (*Config, error) {
	explicit := path != ""

	if !explicit {
		for _, candidate := range []string{"config.yaml", "/config/config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("HLSGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	_ = cfg.Validate()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")

	v.SetDefault("download.out_dir", ".")
	v.SetDefault("download.scratch_dir", "")
	v.SetDefault("download.concurrency", DefaultConcurrency)
	v.SetDefault("download.failure_policy", PolicyFailFast)
	v.SetDefault("download.retry_attempts", 3)
	v.SetDefault("download.retry_backoff", "2s")
	v.SetDefault("download.retry_max_backoff", "8s")

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", "hlsget/1.0")
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("http.rate_burst", 1)

	v.SetDefault("mux.mode", MuxFFmpeg)
	v.SetDefault("mux.ffmpeg_path", "ffmpeg")
	v.SetDefault("mux.extension", "")

	v.SetDefault("log.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)

	v.SetDefault("store.driver", "")
	v.SetDefault("store.sqlite_path", "hlsget.db")
	v.SetDefault("store.postgres_dsn", "")
}

// Validate checks the configuration and fills in values left empty.
func (c *Config) Validate() error {
	if c.Download.OutDir == "" {
		c.Download.OutDir = "."
	}

	if c.Download.ScratchDir == "" {
		c.Download.ScratchDir = os.TempDir()
	}

	if c.Download.Concurrency <= 0 {
		return errors.New("download.concurrency must be positive")
	}

	switch c.Download.FailurePolicy {
	case PolicyFailFast, PolicyPartial:
	case "":
		c.Download.FailurePolicy = PolicyFailFast
	default:
		return fmt.Errorf("download.failure_policy: unsupported value %q (want %s or %s)",
			c.Download.FailurePolicy, PolicyFailFast, PolicyPartial)
	}

	if c.Download.RetryAttempts <= 0 {
		// A single attempt means no retries at all
		c.Download.RetryAttempts = 1
	}

	if c.Download.RetryMaxBackoff < c.Download.RetryBackoff {
		c.Download.RetryMaxBackoff = c.Download.RetryBackoff
	}

	if c.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit cannot be negative")
	}

	if c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = 1
	}

	switch c.Mux.Mode {
	case MuxFFmpeg, MuxConcat:
	default:
		return fmt.Errorf("mux.mode: unsupported value %q (want %s or %s)", c.Mux.Mode, MuxFFmpeg, MuxConcat)
	}

	c.Mux.Extension = strings.TrimPrefix(strings.TrimSpace(c.Mux.Extension), ".")
	if c.Mux.Extension != "" && !validExtension.MatchString(c.Mux.Extension) {
		return fmt.Errorf("mux.extension: %q must be 1-5 letters or digits", c.Mux.Extension)
	}

	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver)
	}

	return nil
}
