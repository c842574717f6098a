package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mentora",
	Short: "Mentora - persona-driven RAG chat service",
	Long: `Mentora is a persona-driven RAG chat service gated by subscription tier.

It answers member questions from a curated knowledge base, meters usage per
billing period, rate-limits bursts, and flags questions the knowledge base
cannot confidently answer for curation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
