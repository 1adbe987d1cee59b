// Package config loads estatecore settings from an optional config.yaml and
// ESTATECORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ESTATECORE_STORE_DRIVER.
const EnvPrefix = "ESTATECORE"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Payment PaymentConfig `mapstructure:"payment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the registry persistence: memory, sqlite or postgres.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// BlobConfig selects the attachment backend: memory, fs or s3.
type BlobConfig struct {
	Driver      string `mapstructure:"driver"`
	Root        string `mapstructure:"root"`
	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKeyID string `mapstructure:"access_key_id"`
	SecretKey   string `mapstructure:"secret_key"`
	PathStyle   bool   `mapstructure:"path_style"`
}

// NotifyConfig lists the supplier notification channels. Drivers is a comma
// separated subset of log, redis, mqtt and email.
type NotifyConfig struct {
	Drivers       string `mapstructure:"drivers"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisStream   string `mapstructure:"redis_stream"`
	RedisMaxLen   int64  `mapstructure:"redis_max_len"`
	MQTTBroker    string `mapstructure:"mqtt_broker"`
	MQTTClientID  string `mapstructure:"mqtt_client_id"`
	MQTTUsername  string `mapstructure:"mqtt_username"`
	MQTTPassword  string `mapstructure:"mqtt_password"`
	MQTTPrefix    string `mapstructure:"mqtt_prefix"`
	MQTTQoS       int    `mapstructure:"mqtt_qos"`
	SendGridKey   string `mapstructure:"sendgrid_key"`
	EmailFrom     string `mapstructure:"email_from"`
	EmailFromName string `mapstructure:"email_from_name"`
}

type PaymentConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Currency string        `mapstructure:"currency"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Channels returns the configured notification drivers, trimmed and lower-cased.
func (n NotifyConfig) Channels() []string {
	var out []string
	for _, part := range strings.Split(n.Drivers, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var defaults = map[string]any{
	"log.level":              "info",
	"log.format":             "json",
	"store.driver":           "memory",
	"store.path":             "estatecore.db",
	"store.dsn":              "",
	"blob.driver":            "fs",
	"blob.root":              "./attachments",
	"blob.bucket":            "",
	"blob.region":            "us-east-1",
	"blob.endpoint":          "",
	"blob.access_key_id":     "",
	"blob.secret_key":        "",
	"blob.path_style":        false,
	"notify.drivers":         "log",
	"notify.redis_addr":      "localhost:6379",
	"notify.redis_stream":    "",
	"notify.redis_max_len":   10000,
	"notify.mqtt_broker":     "tcp://localhost:1883",
	"notify.mqtt_client_id":  "estatecore",
	"notify.mqtt_username":   "",
	"notify.mqtt_password":   "",
	"notify.mqtt_prefix":     "estatecore",
	"notify.mqtt_qos":        1,
	"notify.sendgrid_key":    "",
	"notify.email_from":      "",
	"notify.email_from_name": "Estate Ops",
	"payment.base_url":       "",
	"payment.api_key":        "",
	"payment.currency":       "BRL",
	"payment.timeout":        "15s",
}

// LoadDotEnv loads the given .env files into the process environment. Missing
// files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads config.yaml from configPath (when present) and applies
// environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the driver selections.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Blob.Driver {
	case "memory", "fs":
	case "s3":
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	for _, ch := range c.Notify.Channels() {
		switch ch {
		case "log", "redis", "mqtt":
		case "email":
			if c.Notify.SendGridKey == "" || c.Notify.EmailFrom == "" {
				errs = append(errs, errors.New("notify.sendgrid_key and notify.email_from are required for email"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notify driver %q", ch))
		}
	}
	if c.Notify.MQTTQoS < 0 || c.Notify.MQTTQoS > 2 {
		errs = append(errs, fmt.Errorf("notify.mqtt_qos must be 0, 1 or 2, got %d", c.Notify.MQTTQoS))
	}
	return errors.Join(errs...)
}
