// Package cmd defines the recall command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall - retrieval-augmented chat over your own knowledge base",
	Long: `Recall answers questions strictly from a PostgreSQL-backed knowledge
base. Conversations run a bounded tool-calling loop: the model queries
the knowledge base (and ingests new facts) through tools, and every
model, embedding and retrieval step is traced.

Run "recall serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
