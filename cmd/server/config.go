package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/beastlymac/ccoin/pkg/checkpoints"
)

var (
	// PortFlag sets the HTTP listen port.
	PortFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "HTTP port to listen on",
		EnvVars: []string{"PORT"},
		Value:   3011,
	}
	// NetworkFlag selects the chain to track.
	NetworkFlag = &cli.StringFlag{
		Name:    "network",
		Usage:   "Network to track (main, test, regtest)",
		EnvVars: []string{"CHAIN"},
		Value:   "main",
	}
	// StoragePathFlag defines where header files are kept.
	StoragePathFlag = &cli.StringFlag{
		Name:    "storage-path",
		Usage:   "Directory for header files and the P2P key",
		EnvVars: []string{"STORAGE_PATH"},
		Value:   defaultStoragePath(),
	}
	// BootstrapURLFlag points at a CDN serving header files.
	BootstrapURLFlag = &cli.StringFlag{
		Name:    "bootstrap-url",
		Usage:   "CDN base URL to bootstrap headers from",
		EnvVars: []string{"BOOTSTRAP_URL"},
	}
	// DisableCheckpointsFlag turns off checkpoint enforcement on any network.
	DisableCheckpointsFlag = &cli.BoolFlag{
		Name:    "disable-checkpoints",
		Usage:   "Accept headers and reorganizations regardless of checkpoints",
		EnvVars: []string{"DISABLE_CHECKPOINTS"},
	}
	// LogLevelFlag defines the logrus level.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "info",
	}
	// LogFormatFlag selects the log formatter.
	LogFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "Log format (text, json)",
		EnvVars: []string{"LOG_FORMAT"},
		Value:   "text",
	}
)

var appFlags = []cli.Flag{
	PortFlag,
	NetworkFlag,
	StoragePathFlag,
	BootstrapURLFlag,
	DisableCheckpointsFlag,
	LogLevelFlag,
	LogFormatFlag,
}

// Config holds the server configuration
type Config struct {
	Port               int
	Network            string
	StoragePath        string
	BootstrapURL       string
	DisableCheckpoints bool
}

// LoadConfig reads the configuration from parsed flags and environment variables
func LoadConfig(ctx *cli.Context) (*Config, error) {
	config := &Config{
		Port:               ctx.Int(PortFlag.Name),
		Network:            ctx.String(NetworkFlag.Name),
		StoragePath:        ctx.String(StoragePathFlag.Name),
		BootstrapURL:       ctx.String(BootstrapURLFlag.Name),
		DisableCheckpoints: ctx.Bool(DisableCheckpointsFlag.Name),
	}

	if _, err := checkpoints.LookupNetwork(config.Network); err != nil {
		return nil, err
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}

	return config, nil
}

// Registry returns the checkpoint registry for the configured network
func (c *Config) Registry() (*checkpoints.Registry, error) {
	return checkpoints.ForNetwork(c.Network, c.DisableCheckpoints)
}

// defaultStoragePath returns ~/.chaintracks as the default storage path
func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data/headers"
	}
	return filepath.Join(home, ".chaintracks")
}
