package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eclipse-os/eclipsefs/internal/cli/output"
	"github.com/eclipse-os/eclipsefs/pkg/fs/snapshot"
)

var (
	snapshotParent uint64
	snapshotOutput string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <image> [name]",
	Short: "Create or list snapshots of a volume",
	Long: `Create a named snapshot of the current volume state, or list the
existing snapshots when no name is given.

Examples:
  # List snapshots
  eclipsefs snapshot volume.efs

  # Create a snapshot
  eclipsefs snapshot volume.efs nightly-backup

  # Create an incremental snapshot chained to snapshot 3
  eclipsefs snapshot volume.efs nightly-backup --parent 3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().Uint64Var(&snapshotParent, "parent", snapshot.NoParent,
		"Parent snapshot ID for incremental chains (0 for none)")
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// SnapshotList renders snapshot metadata for all output formats.
type SnapshotList []snapshot.Info

func (l SnapshotList) Headers() []string {
	return []string{"ID", "NAME", "PARENT", "INODES", "BLOCKS", "CREATED"}
}

func (l SnapshotList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		parent := "-"
		if s.Parent != snapshot.NoParent {
			parent = fmt.Sprintf("%d", s.Parent)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.ID),
			s.Name,
			parent,
			fmt.Sprintf("%d", s.InodeCount),
			fmt.Sprintf("%d", s.BlockCount),
			formatEpoch(s.Timestamp),
		})
	}
	return rows
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(snapshotOutput)
	if err != nil {
		return err
	}
	printer := output.NewPrinter(os.Stdout, format)

	eng, _, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) == 1 {
		snaps := eng.Snapshots()
		if len(snaps) == 0 && format == output.FormatTable {
			printer.Printf("No snapshots\n")
			return nil
		}
		return printer.Print(SnapshotList(snaps))
	}

	id, err := eng.CreateSnapshot(args[1], snapshotParent)
	if err != nil {
		return err
	}

	if err := eng.Sync(); err != nil {
		return err
	}

	printer.Printf("Created snapshot %d (%s)\n", id, args[1])
	if format != output.FormatTable {
		info, err := eng.Snapshot(id)
		if err != nil {
			return err
		}
		return printer.Print(info)
	}
	return nil
}
