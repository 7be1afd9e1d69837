package config

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	Service    Service
	Contact    ContactInfo
	Directives Directives
	Discovery  Discovery
	Telemetry  Telemetry
	Log        Log
	Schema     Schema
}

// Service identifies this process towards the discovery service.
type Service struct {
	Name    string
	ID      string
	Address string
	Port    int
	Tags    []string
	Version string
}

// ContactInfo is the externally configured support contact of the card
// service. Keys are lowercase so that they line up with the camelCase
// GraphQL field names of the contactInfo query.
type ContactInfo struct {
	Message        string         `mapstructure:"message"`
	ContactDetails ContactDetails `mapstructure:"contactdetails"`
	OnCallSupport  []string       `mapstructure:"oncallsupport"`
}

type ContactDetails struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// Directives decides which built-in directives are constructed.
type Directives struct {
	Enabled []string
	Mask    MaskConf
}

type MaskConf struct {
	Keep int
	With string
}

type Discovery struct {
	Enabled bool
	Address string
	Scheme  string
	Token   string
	// Timeout bounds each register/deregister call.
	Timeout time.Duration
	// CheckTTL is the TTL of the health check attached to the registration.
	// Zero disables the check.
	CheckTTL time.Duration
	// DeregisterAfter lets the agent drop the instance when the check stays
	// critical for that long.
	DeregisterAfter time.Duration
}

type Telemetry struct {
	OTLPEndpoint string
	MetricsAddr  string
	MetricsPath  string
}

type Log struct {
	Level  slog.Level
	Format string
}

type Schema struct {
	Dir string
}

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name must not be empty")
	}
	if c.Schema.Dir == "" {
		return fmt.Errorf("schema.dir must not be empty")
	}
	if c.Log.Format != LogFormatText && c.Log.Format != LogFormatJSON {
		return fmt.Errorf("log.format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.Log.Format)
	}
	if c.Directives.Mask.Keep < 0 {
		return fmt.Errorf("directives.mask.keep must not be negative")
	}
	if c.Discovery.Enabled {
		if c.Discovery.Address == "" {
			return fmt.Errorf("discovery.address is required when discovery is enabled")
		}
		if c.Service.Port <= 0 {
			return fmt.Errorf("service.port is required when discovery is enabled")
		}
	}
	return nil
}
