package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted in StorageConfig.Driver.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// StorageConfig selects and configures the durable document store.
type StorageConfig struct {
	// Driver is one of "sqlite", "file" or "redis".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the SQLite database file, or the directory holding the
	// JSON collections for the file driver.
	Path string `mapstructure:"path" yaml:"path"`

	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db" yaml:"redis_db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// LLMConfig holds settings for the text-generation service.
type LLMConfig struct {
	URL               string  `mapstructure:"url" yaml:"url"`
	Model             string  `mapstructure:"model" yaml:"model"`
	TimeoutSec        int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	ExtractTimeoutSec int     `mapstructure:"extract_timeout_sec" yaml:"extract_timeout_sec"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NotifyConfig controls the notification scheduler.
type NotifyConfig struct {
	ScanIntervalMin int `mapstructure:"scan_interval_min" yaml:"scan_interval_min"`
	CooldownSec     int `mapstructure:"cooldown_sec" yaml:"cooldown_sec"`
	HistoryLimit    int `mapstructure:"history_limit" yaml:"history_limit"`
	LookaheadHours  int `mapstructure:"lookahead_hours" yaml:"lookahead_hours"`
}

// ScanInterval returns the scan interval as a duration.
func (c NotifyConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMin) * time.Minute
}

// Cooldown returns the per-deadline cooldown as a duration.
func (c NotifyConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// EmailConfig holds the IMAP mailbox settings used for deadline sync.
type EmailConfig struct {
	IMAPHost        string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort        string `mapstructure:"imap_port" yaml:"imap_port"`
	Username        string `mapstructure:"username" yaml:"username"`
	Password        string `mapstructure:"password" yaml:"password"`
	TLS             bool   `mapstructure:"tls" yaml:"tls"`
	Days            int    `mapstructure:"days" yaml:"days"`
	Limit           int    `mapstructure:"limit" yaml:"limit"`
	PollIntervalMin int    `mapstructure:"poll_interval_min" yaml:"poll_interval_min"`
}

// SMTPConfig holds settings for the email notification sink. The sink is
// disabled when Host is empty.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`
	To       string `mapstructure:"to" yaml:"to"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
	Email   EmailConfig   `mapstructure:"email" yaml:"email"`
	SMTP    SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/deadlined/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "deadlined", "config.yaml")
}

// defaultDataPath returns the default SQLite database location.
func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "deadlines.db")
	}
	return filepath.Join(home, ".local", "share", "deadlined", "deadlines.db")
}

// setDefaults registers every default on v so missing keys resolve to
// sensible values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.path", defaultDataPath())
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.key_prefix", "deadlined:")

	v.SetDefault("llm.url", "http://localhost:11434/api/generate")
	v.SetDefault("llm.model", "mistral")
	v.SetDefault("llm.timeout_sec", 5)
	v.SetDefault("llm.extract_timeout_sec", 30)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 200)

	v.SetDefault("notify.scan_interval_min", 15)
	v.SetDefault("notify.cooldown_sec", 3600)
	v.SetDefault("notify.history_limit", 100)
	v.SetDefault("notify.lookahead_hours", 48)

	v.SetDefault("email.imap_host", "imap.gmail.com")
	v.SetDefault("email.imap_port", "993")
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.tls", true)
	v.SetDefault("email.days", 7)
	v.SetDefault("email.limit", 50)
	v.SetDefault("email.poll_interval_min", 0)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.to", "")

	v.SetDefault("api.addr", ":5000")
	v.SetDefault("api.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults are used. Environment variables
// prefixed with DEADLINED_ override file values (e.g. DEADLINED_API_TOKEN).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DEADLINED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		_, pathErr := err.(*os.PathError)
		if !notFound && !pathErr {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StorageFile, StorageRedis:
	default:
		return fmt.Errorf("storage.driver must be one of sqlite, file, redis (got %q)", c.Storage.Driver)
	}
	if c.Storage.Driver != StorageRedis && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
	}
	if c.Notify.ScanIntervalMin <= 0 {
		return fmt.Errorf("notify.scan_interval_min must be positive (got %d)", c.Notify.ScanIntervalMin)
	}
	if c.Notify.CooldownSec <= 0 {
		return fmt.Errorf("notify.cooldown_sec must be positive (got %d)", c.Notify.CooldownSec)
	}
	if c.Notify.HistoryLimit <= 0 {
		return fmt.Errorf("notify.history_limit must be positive (got %d)", c.Notify.HistoryLimit)
	}
	if c.Notify.LookaheadHours <= 0 {
		return fmt.Errorf("notify.lookahead_hours must be positive (got %d)", c.Notify.LookaheadHours)
	}
	if c.LLM.TimeoutSec <= 0 || c.LLM.ExtractTimeoutSec <= 0 {
		return fmt.Errorf("llm timeouts must be positive (got %d, %d)", c.LLM.TimeoutSec, c.LLM.ExtractTimeoutSec)
	}
	if c.Email.PollIntervalMin < 0 {
		return fmt.Errorf("email.poll_interval_min cannot be negative (got %d)", c.Email.PollIntervalMin)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("storage", cfg.Storage)
	v.Set("llm", cfg.LLM)
	v.Set("notify", cfg.Notify)
	v.Set("email", cfg.Email)
	v.Set("smtp", cfg.SMTP)
	v.Set("api", cfg.API)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
