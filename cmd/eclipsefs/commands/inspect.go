package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eclipse-os/eclipsefs/internal/cli/output"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
)

var inspectOutput string

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Show volume geometry and usage",
	Long: `Display the geometry, feature flags and usage counters of an
EclipseFS volume image.

Examples:
  eclipsefs inspect volume.efs

  # Output as JSON
  eclipsefs inspect volume.efs --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// VolumeInfo is the inspect command result.
type VolumeInfo struct {
	Path        string `json:"path" yaml:"path"`
	BlockSize   uint32 `json:"block_size" yaml:"block_size"`
	TotalBlocks uint64 `json:"total_blocks" yaml:"total_blocks"`
	FreeBlocks  uint64 `json:"free_blocks" yaml:"free_blocks"`
	Inodes      int    `json:"inodes" yaml:"inodes"`
	Snapshots   int    `json:"snapshots" yaml:"snapshots"`
	Features    string `json:"features" yaml:"features"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(inspectOutput)
	if err != nil {
		return err
	}

	eng, _, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer eng.Close()

	info := eng.Info()
	result := VolumeInfo{
		Path:        args[0],
		BlockSize:   info.BlockSize,
		TotalBlocks: info.TotalBlocks,
		FreeBlocks:  info.FreeBlocks,
		Inodes:      info.Inodes,
		Snapshots:   info.Snapshots,
		Features:    featureNames(info.Features),
	}

	if format == output.FormatTable {
		return output.KeyValueTable(os.Stdout, [][2]string{
			{"Volume", result.Path},
			{"Block size", fmt.Sprintf("%d bytes", result.BlockSize)},
			{"Total blocks", fmt.Sprintf("%d", result.TotalBlocks)},
			{"Free blocks", fmt.Sprintf("%d", result.FreeBlocks)},
			{"Inodes", fmt.Sprintf("%d", result.Inodes)},
			{"Snapshots", fmt.Sprintf("%d", result.Snapshots)},
			{"Features", result.Features},
		})
	}
	return output.NewPrinter(os.Stdout, format).Print(result)
}

func featureNames(features uint64) string {
	names := ""
	add := func(bit uint64, name string) {
		if features&bit == 0 {
			return
		}
		if names != "" {
			names += ", "
		}
		names += name
	}
	add(layout.FeatureCompression, "compression")
	add(layout.FeatureEncryption, "encryption")
	add(layout.FeatureSnapshots, "snapshots")
	add(layout.FeatureDedup, "dedup")
	if names == "" {
		return "none"
	}
	return names
}
