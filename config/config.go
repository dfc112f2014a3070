/*
Package config loads server configuration.

PURPOSE:
  Defaults first, optional TOML file on top, command-line flags last (the
  flags are applied in cmd/server). The gateway server key lives in the
  file rather than on the command line.

EXAMPLE (engine.toml):

  [server]
  port = 8080

  [store]
  path = "./data/engine.db"

  [gateway]
  server_key = "SB-Mid-server-..."
  production = false
  timeout_seconds = 10
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Gateway GatewayConfig `toml:"gateway"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type GatewayConfig struct {
	// ServerKey is the Midtrans server key. Empty means no gateway is
	// configured and the server runs with the in-memory verifier.
	ServerKey      string `toml:"server_key"`
	Production     bool   `toml:"production"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080},
		Store:   StoreConfig{Path: "tuition.db"},
		Gateway: GatewayConfig{TimeoutSeconds: 10},
	}
}

// Load reads a TOML file over the defaults. A missing file is not an
// error when path is empty; a named file that doesn't exist is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// VerifyTimeout returns the gateway verification timeout as a duration.
func (c GatewayConfig) VerifyTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
