package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/probe/internal/archive"
	"github.com/tinytelemetry/probe/internal/dispatch"
	"github.com/tinytelemetry/probe/internal/executor"
	"github.com/tinytelemetry/probe/internal/model"
	"github.com/tinytelemetry/probe/internal/runner"
)

const (
	defaultConcurrency  = model.DefaultConcurrency
	defaultTimeout      = model.DefaultTimeout
	defaultRetries      = model.DefaultRetries
	defaultBackoffBase  = model.DefaultBackoffBase
	defaultFlushEvery   = model.DefaultFlushEvery
	defaultOrder        = "completion"
	defaultRateBurst    = 1
	defaultCasesFile    = "cases.yml"
	defaultAPIAddr      = "127.0.0.1:3300"
	defaultLogLevel     = "info"
	defaultQueryTimeout = 30 * time.Second
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	BackoffBase  time.Duration `mapstructure:"backoff-base"`
	FlushEvery   int           `mapstructure:"flush-every"`
	MaxRows      int           `mapstructure:"max-rows"`
	Order        string        `mapstructure:"order"`
	RateLimit    float64       `mapstructure:"rate-limit"`
	RateBurst    int           `mapstructure:"rate-burst"`
	QueryColumn  string        `mapstructure:"query-column"`
	QueryField   string        `mapstructure:"query-field"`
	Sheet        string        `mapstructure:"sheet"`
	Encoding     string        `mapstructure:"encoding"`
	CasesFile    string        `mapstructure:"cases-file"`
	DBPath       string        `mapstructure:"db-path"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`
	APIEnabled   bool          `mapstructure:"api-enabled"`
	APIAddr      string        `mapstructure:"api-addr"`
	TUI          bool          `mapstructure:"tui"`
	LogLevel     string        `mapstructure:"log-level"`
	LogFile      string        `mapstructure:"log-file"`

	ArchiveBucketURL string `mapstructure:"archive-bucket-url"`
	ArchiveEndpoint  string `mapstructure:"archive-endpoint"`
	ArchiveRegion    string `mapstructure:"archive-region"`
	ArchiveAccessKey string `mapstructure:"archive-access-key"`
	ArchiveSecretKey string `mapstructure:"archive-secret-key"`
	ArchiveUseSSL    bool   `mapstructure:"archive-use-ssl"`
	ArchiveSnapshot  bool   `mapstructure:"archive-snapshot-index"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// loadConfig layers flags over PROBE_* env over the config file over defaults.
// flags may be nil.
func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PROBE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("concurrency", defaultConcurrency)
	v.SetDefault("timeout", defaultTimeout)
	v.SetDefault("retries", defaultRetries)
	v.SetDefault("backoff-base", defaultBackoffBase)
	v.SetDefault("flush-every", defaultFlushEvery)
	v.SetDefault("max-rows", 0)
	v.SetDefault("order", defaultOrder)
	v.SetDefault("rate-limit", 0.0)
	v.SetDefault("rate-burst", defaultRateBurst)
	v.SetDefault("query-column", model.DefaultQueryColumn)
	v.SetDefault("query-field", model.DefaultQueryField)
	v.SetDefault("sheet", "")
	v.SetDefault("encoding", "")
	v.SetDefault("cases-file", defaultCasesFile)
	v.SetDefault("db-path", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("tui", false)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", "")
	v.SetDefault("archive-bucket-url", "")
	v.SetDefault("archive-endpoint", "")
	v.SetDefault("archive-region", "")
	v.SetDefault("archive-access-key", "")
	v.SetDefault("archive-secret-key", "")
	v.SetDefault("archive-use-ssl", true)
	v.SetDefault("archive-snapshot-index", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "probe", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	// Expand ~ in paths
	for _, p := range []*string{&cfg.DBPath, &cfg.CasesFile, &cfg.LogFile} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
	return cfg, nil
}

func (c appConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	if c.FlushEvery < 1 {
		return fmt.Errorf("invalid flush-every: %d", c.FlushEvery)
	}
	if c.Retries < 0 {
		return fmt.Errorf("invalid retries: %d", c.Retries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("invalid backoff-base: %s", c.BackoffBase)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("invalid max-rows: %d", c.MaxRows)
	}
	if _, err := dispatch.ParseMode(c.Order); err != nil {
		return fmt.Errorf("invalid order: %q", c.Order)
	}
	return nil
}

func (c appConfig) policy() executor.Policy {
	return executor.Policy{
		Timeout:     c.Timeout,
		MaxRetries:  c.Retries,
		BackoffBase: c.BackoffBase,
	}
}

func (c appConfig) runnerConfig() runner.Config {
	mode, _ := dispatch.ParseMode(c.Order)
	return runner.Config{
		Concurrency: c.Concurrency,
		Policy:      c.policy(),
		FlushEvery:  c.FlushEvery,
		MaxRows:     c.MaxRows,
		Mode:        mode,
		Sheet:       c.Sheet,
		Encoding:    c.Encoding,
	}
}

func (c appConfig) caseDefaults() model.CaseDefaults {
	return model.CaseDefaults{QueryColumn: c.QueryColumn, QueryField: c.QueryField}
}

func (c appConfig) archiveConfig() archive.Config {
	return archive.Config{
		Enabled:       strings.TrimSpace(c.ArchiveBucketURL) != "",
		BucketURL:     c.ArchiveBucketURL,
		Endpoint:      c.ArchiveEndpoint,
		Region:        c.ArchiveRegion,
		AccessKey:     c.ArchiveAccessKey,
		SecretKey:     c.ArchiveSecretKey,
		UseSSL:        c.ArchiveUseSSL,
		SnapshotIndex: c.ArchiveSnapshot,
	}
}
