// Package cmd implements the CLI using the cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "strix",
	Short: "Strix - AVDECC proxy server and link-layer toolkit",
	Long: `Strix bridges AVDECC proxy clients (IEEE 1722.1-2013 Annex C) onto a raw
Ethernet interface. Clients connect over TCP and exchange APPDUs; the daemon
moves the encapsulated AVDECC PDUs to and from the wire.`,
	Version: "0.1.0",
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/strix/config.yml",
		"config file path")
}
