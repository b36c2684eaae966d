// Package smppconf defines the configuration structs for a Client and
// a Server and an optional env-tag based loader for process-level
// defaults. Nothing in the protocol engine requires an environment
// read; embedders are free to build ClientConfig/ServerConfig by hand.
package smppconf

import (
	"time"

	"github.com/caarlos0/env/v7"
)

// ClientConfig configures a Client's connection and bind parameters.
type ClientConfig struct {
	Addr       string `env:"SMPP_ADDR"`
	SystemID   string `env:"SMPP_SYSTEM_ID"`
	Password   string `env:"SMPP_PASSWORD"`
	SystemType string `env:"SMPP_SYSTEM_TYPE"`
	AddrTon    int    `env:"SMPP_ADDR_TON" envDefault:"0"`
	AddrNpi    int    `env:"SMPP_ADDR_NPI" envDefault:"0"`
	AddrRange  string `env:"SMPP_ADDR_RANGE"`

	BindTimeout         time.Duration `env:"SMPP_BIND_TIMEOUT" envDefault:"10s"`
	ResponseTimeout     time.Duration `env:"SMPP_RESPONSE_TIMEOUT" envDefault:"30s"`
	EnquireLinkInterval time.Duration `env:"SMPP_ENQUIRE_LINK_INTERVAL" envDefault:"60s"`
}

// ServerConfig configures a Server's listener and per-session defaults.
type ServerConfig struct {
	Addr           string `env:"SMPP_LISTEN_ADDR" envDefault:":2775"`
	MaxConnections int    `env:"SMPP_MAX_CONNECTIONS" envDefault:"1000"`

	BindTimeout         time.Duration `env:"SMPP_BIND_TIMEOUT" envDefault:"10s"`
	ResponseTimeout     time.Duration `env:"SMPP_RESPONSE_TIMEOUT" envDefault:"30s"`
	EnquireLinkInterval time.Duration `env:"SMPP_ENQUIRE_LINK_INTERVAL" envDefault:"60s"`
}

// LoadClientConfig reads a ClientConfig from the process environment,
// applying envDefault tags for anything unset.
func LoadClientConfig() (ClientConfig, error) {
	cfg := ClientConfig{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadServerConfig reads a ServerConfig from the process environment,
// applying envDefault tags for anything unset.
func LoadServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
