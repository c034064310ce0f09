package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/conatus-oss/dana-archive/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dana-archive",
		Short: "Manage a local digital asset archive",
	}

	rootCmd.AddCommand(cmd.NewOpenCommand())
	rootCmd.AddCommand(cmd.NewBootstrapCommand())
	rootCmd.AddCommand(cmd.NewExportCommand())
	rootCmd.AddCommand(cmd.NewSyncCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
