package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/mentora-ai/mentora/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Mentora version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mentora %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
