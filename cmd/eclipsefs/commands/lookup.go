package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <image> <path>",
	Short: "Resolve a path to its inode number",
	Long: `Walk the directory tree of a volume image and resolve an absolute
path to its inode number.

Examples:
  eclipsefs lookup volume.efs /etc/hosts`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	eng, _, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer eng.Close()

	inode, err := eng.LookupPath(args[1])
	if err != nil {
		return err
	}

	fmt.Printf("%s -> inode %d\n", args[1], inode)
	return nil
}
