package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedgate",
		Short: "Feedgate - cached social feed API",
		Long:  "An API server that serves Reddit and Twitter feeds through a read-through cache with stale fallback",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (JSON or YAML)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
