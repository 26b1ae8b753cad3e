package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/registry"
)

var personsCmd = &cobra.Command{
	Use:   "persons <group>",
	Short: "List persons in a group",
	Long: `List every person in a group that owns at least one stored face,
partitioned into permanent and temporary identities.

Example:
  face-registry persons wedding-2024
  face-registry persons wedding-2024 --name "jan novak"`,
	Args: cobra.ExactArgs(1),
	RunE: runPersons,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.Flags().String("name", "", "Filter by person name (case and diacritics insensitive)")
	personsCmd.Flags().Bool("json", false, "Print the listing as JSON")
}

func printPersons(label string, persons []registry.PersonInfo) {
	if len(persons) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, p := range persons {
		name := p.Metadata.Attrs["name"]
		if name != "" {
			fmt.Printf("  %s  %3d faces  %s\n", p.PersonID, p.FaceCount, name)
		} else {
			fmt.Printf("  %s  %3d faces\n", p.PersonID, p.FaceCount)
		}
	}
}

func runPersons(cmd *cobra.Command, args []string) error {
	group := args[0]
	cfg := config.Load()

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := registry.New(store)
	list, err := reg.ListPersons(context.Background(), group, registry.ListOptions{
		Name: mustGetString(cmd, "name"),
	})
	if err != nil {
		return fmt.Errorf("listing persons: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	printPersons("Permanent", list.Permanent)
	printPersons("Temporary", list.Temporary)
	fmt.Printf("\nTotal: %d (%d permanent, %d temporary)\n",
		list.Summary.TotalUsers, list.Summary.PermanentUsers, list.Summary.TemporaryUsers)
	return nil
}
