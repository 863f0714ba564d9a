// Package config loads labctl settings from defaults, an optional YAML file, LABCTL_*
// environment variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names; "site.api_key" is read from
// LABCTL_SITE_API_KEY.
const EnvPrefix = "LABCTL"

// Config is the complete labctl configuration.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Stats   StatsConfig   `mapstructure:"stats"`
}

// SiteConfig says which lab server to use and how to authenticate.
type SiteConfig struct {
	URL          string        `mapstructure:"url"`
	APIVersion   string        `mapstructure:"api_version"`
	APIKey       string        `mapstructure:"api_key"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	VerifyTLS    bool          `mapstructure:"verify_tls"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Trace        bool          `mapstructure:"trace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set, e.g. ":9100".
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]interface{}{
	"site.url":           "",
	"site.api_version":   "v1",
	"site.api_key":       "",
	"site.username":      "",
	"site.password":      "",
	"site.verify_tls":    false,
	"site.timeout":       "0s",
	"site.poll_interval": "100ms",
	"site.trace":         false,
	"log.level":          "info",
	"log.json":           false,
	"metrics.listen":     "",
	"stats.interval":     "500ms",
	"stats.timeout":      "300s",
}

// FlagKeys maps command-line flag names to configuration keys. Load binds every flag in this
// table that exists in the flag set it is given.
var FlagKeys = map[string]string{
	"site":           "site.url",
	"api-version":    "site.api_version",
	"api-key":        "site.api_key",
	"username":       "site.username",
	"password":       "site.password",
	"verify-tls":     "site.verify_tls",
	"timeout":        "site.timeout",
	"trace":          "site.trace",
	"log-level":      "log.level",
	"log-json":       "log.json",
	"metrics-listen": "metrics.listen",
	"stats-interval": "stats.interval",
	"stats-timeout":  "stats.timeout",
}

// Load reads the configuration. If path is empty, labctl.yaml is looked for in the current
// directory and is optional; an explicit path must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("labctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings needed to connect.
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return errors.New("site.url is required")
	}
	if !strings.HasPrefix(c.Site.URL, "http://") && !strings.HasPrefix(c.Site.URL, "https://") {
		return fmt.Errorf("site.url must be an http or https URL, got: %s", c.Site.URL)
	}
	if c.Site.APIVersion == "" {
		return errors.New("site.api_version is required")
	}
	if c.Site.APIKey == "" && (c.Site.Username == "" || c.Site.Password == "") {
		return errors.New("either site.api_key or both site.username and site.password are required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", c.Log.Level)
	}
	if c.Site.Timeout < 0 {
		return errors.New("site.timeout must not be negative")
	}
	if c.Site.PollInterval <= 0 || c.Stats.Interval <= 0 || c.Stats.Timeout <= 0 {
		return errors.New("site.poll_interval, stats.interval and stats.timeout must be positive")
	}
	return nil
}
