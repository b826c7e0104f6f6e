package cmd

import (
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Offline analysis of proving and precompile data",
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
