// Package commands implements the eclipsefs CLI.
package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/config"
	"github.com/eclipse-os/eclipsefs/pkg/fs/device"
	"github.com/eclipse-os/eclipsefs/pkg/fs/engine"
	"github.com/eclipse-os/eclipsefs/pkg/metrics"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "eclipsefs",
	Short: "EclipseFS - versioned storage engine with transparent encryption",
	Long: `EclipseFS is a copy-on-write storage engine with a custom binary
on-disk format, checksummed node records, a pluggable LRU/ARC node
cache, per-path AEAD encryption with key rotation, and snapshot and
deduplication bookkeeping.

Use "eclipsefs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrf("Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: $XDG_CONFIG_HOME/eclipsefs/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(mkfsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(snapshotCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path set via the global
// --config flag, or "" when the default location should be used.
func GetConfigFile() string {
	return cfgFile
}

// loadConfig loads the configuration honoring the global --config flag
// and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	return cfg, nil
}

// openVolume mounts the image at path using the loaded configuration.
func openVolume(path string) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	dev, err := device.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}

	opts, err := config.EngineOptions(cfg, metrics.NewCacheMetrics(cfg.Cache.Strategy))
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	eng, err := engine.Open(dev, opts)
	if err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("failed to open volume %s: %w", path, err)
	}
	return eng, cfg, nil
}
