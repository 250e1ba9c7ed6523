package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "perfiles",
	Short:   "Perfil registration service",
	Long:    `Records perfil registrations per serial, model and side, enforcing the per-combination ceiling.`,
	Version: version,
	// Commands report their own errors through the logger.
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
