package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/registry"
)

var registerCmd = &cobra.Command{
	Use:   "register <group> <person-id>",
	Short: "Pre-register a permanent identity",
	Long: `Register a caller-assigned permanent person identity in a group
before any face is stored for it. Fails when the person already exists.

Example:
  face-registry register wedding-2024 alice`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	group := args[0]
	personID := args[1]

	cfg := config.Load()
	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := registry.New(store)
	if err := reg.RegisterPermanentIdentity(context.Background(), group, personID); err != nil {
		return fmt.Errorf("registering identity: %w", err)
	}

	fmt.Printf("Registered permanent identity %s in group %s\n", personID, group)
	return nil
}
