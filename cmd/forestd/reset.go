package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forest/internal/config"
	"forest/internal/kvstore"
	"forest/internal/logging"
	"forest/internal/project"
	"forest/internal/vector"
)

var (
	resetConfirm bool
	resetMessage string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every project and its data",
	Long: `Factory reset. Requires --confirm plus a typed --message of at
least 10 characters, the same double confirmation the tool surface asks
for.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "confirm the deletion")
	resetCmd.Flags().StringVar(&resetMessage, "message", "", "typed confirmation message (min 10 characters)")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if err := logging.Initialize(cfg.DataDir, cfg.Debug); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.CloseAll()

	kv, err := kvstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("kv store: %w", err)
	}
	defer kv.Close()

	idx, err := vector.Open(cfg)
	if err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	defer idx.Close()

	deleted, err := project.NewManager(kv, idx).FactoryReset(resetConfirm, resetMessage)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d projects\n", deleted)
	return nil
}
