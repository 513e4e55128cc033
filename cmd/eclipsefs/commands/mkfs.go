package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eclipse-os/eclipsefs/internal/logger"
	"github.com/eclipse-os/eclipsefs/pkg/config"
	"github.com/eclipse-os/eclipsefs/pkg/fs/crypt"
	"github.com/eclipse-os/eclipsefs/pkg/fs/device"
	"github.com/eclipse-os/eclipsefs/pkg/fs/engine"
	"github.com/eclipse-os/eclipsefs/pkg/metrics"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs <image>",
	Short: "Create a new EclipseFS volume image",
	Long: `Create and format a new EclipseFS volume image file.

Geometry (block size, total blocks), compression, cache and encryption
policies are taken from the configuration file.

Examples:
  # Create a volume with default settings
  eclipsefs mkfs volume.efs

  # Create a volume with a custom configuration
  eclipsefs mkfs --config ./eclipsefs.yaml volume.efs`,
	Args: cobra.ExactArgs(1),
	RunE: runMkfs,
}

func runMkfs(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts, err := config.EngineOptions(cfg, metrics.NewCacheMetrics(cfg.Cache.Strategy))
	if err != nil {
		return err
	}

	dev, err := device.CreateFile(imagePath)
	if err != nil {
		return err
	}

	eng, err := engine.Format(dev, opts)
	if err != nil {
		dev.Close()
		return fmt.Errorf("failed to format volume %s: %w", imagePath, err)
	}

	for _, p := range cfg.Encryption.Policies {
		algo, err := crypt.ParseAlgorithm(p.Algorithm)
		if err != nil {
			eng.Close()
			return err
		}
		if err := eng.RegisterEncryptionPolicy(p.Path, algo); err != nil {
			eng.Close()
			return fmt.Errorf("failed to register encryption policy for %s: %w", p.Path, err)
		}
	}

	if err := eng.Close(); err != nil {
		return err
	}

	logger.Info("formatted volume", "path", imagePath,
		"block_size", opts.BlockSize, "total_blocks", opts.TotalBlocks)

	info := fmt.Sprintf("%d blocks of %d bytes", opts.TotalBlocks, opts.BlockSize)
	fmt.Printf("Created volume %s (%s)\n", imagePath, info)
	if len(cfg.Encryption.Policies) > 0 {
		fmt.Printf("Registered %d encryption policies\n", len(cfg.Encryption.Policies))
	}
	return nil
}
