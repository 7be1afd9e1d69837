package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// CARDGRAPH_DISCOVERY_ADDRESS for discovery.address.
const EnvPrefix = "CARDGRAPH"

// Option adjusts the viper instance after defaults, file and environment are
// in place. Options win over every other source.
type Option func(*viper.Viper)

// WithOverride forces key to value.
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) { v.Set(key, value) }
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "cards")
	v.SetDefault("service.id", "")
	v.SetDefault("service.address", "")
	v.SetDefault("service.port", 9000)
	v.SetDefault("service.tags", []string{"graphql"})
	v.SetDefault("service.version", "dev")

	v.SetDefault("contact.message", "")
	v.SetDefault("contact.contactdetails.name", "")
	v.SetDefault("contact.contactdetails.email", "")
	v.SetDefault("contact.oncallsupport", []string{})

	v.SetDefault("directives.enabled", []string{"upper", "lower", "mask", "auth"})
	v.SetDefault("directives.mask.keep", 4)
	v.SetDefault("directives.mask.with", "*")

	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.address", "localhost:8500")
	v.SetDefault("discovery.scheme", "http")
	v.SetDefault("discovery.token", "")
	v.SetDefault("discovery.timeout", 5*time.Second)
	v.SetDefault("discovery.checkttl", 15*time.Second)
	v.SetDefault("discovery.deregisterafter", time.Minute)

	v.SetDefault("telemetry.otlpendpoint", "")
	v.SetDefault("telemetry.metricsaddr", "")
	v.SetDefault("telemetry.metricspath", "/metrics")

	v.SetDefault("log.level", slog.LevelInfo)
	v.SetDefault("log.format", LogFormatText)

	v.SetDefault("schema.dir", "graphql")
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty or the file does not exist), CARDGRAPH_* environment
// variables and opts, in increasing precedence.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	for _, opt := range opts {
		opt(v)
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("couldn't parse config: %w", err)
	}
	cfg.Service.Tags = trimNonEmpty(cfg.Service.Tags)
	cfg.Directives.Enabled = trimNonEmpty(cfg.Directives.Enabled)
	cfg.Contact.OnCallSupport = trimNonEmpty(cfg.Contact.OnCallSupport)

	return cfg, cfg.Validate()
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
