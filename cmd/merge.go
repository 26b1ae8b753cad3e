package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/registry"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <group> <target-person> <source-person> [source-person...]",
	Short: "Merge persons into a target identity",
	Long: `Merge one or more source persons into a target person within a group.
Every face owned by the sources moves to the target and the source
identities cease to exist. Typically used to fold temporary identities
into the person they turned out to be.

Example:
  face-registry merge wedding-2024 alice 3f2a... 9c81...`,
	Args: cobra.MinimumNArgs(3),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	group := args[0]
	target := args[1]
	sources := args[2:]

	cfg := config.Load()
	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := registry.New(store)
	result, err := reg.Merge(context.Background(), group, sources, target)
	if err != nil {
		return fmt.Errorf("merging persons: %w", err)
	}

	for _, src := range result.MergedSources {
		kind := "permanent"
		if src.WasTempUser {
			kind = "temporary"
		}
		fmt.Printf("Merged %s (%s, %d faces)\n", src.PersonID, kind, src.FacesMoved)
	}
	fmt.Printf("\n%d faces moved to %s\n", result.TotalFacesMoved, result.TargetPersonID)
	return nil
}
