// forestd is the forest learning-plan orchestration server. It speaks
// the MCP tool protocol over stdio and delegates all language-model
// completions back to the connected client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forestd",
	Short: "Forest learning-plan orchestration server",
	Long: `Forest turns an open-ended learning goal into a durable, adaptive
Hierarchical Task Analysis tree and drives a continuous cycle of
generate, present, complete, evolve over the MCP stdio protocol.`,
	SilenceUsage: true,
}

func main() {
	// A .env next to the binary is a developer convenience; absence is
	// the normal case.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
