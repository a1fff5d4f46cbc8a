// Command ebics is a command line EBICS client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables
var (
	version = "dev"
	commit  = "none"
)

// Global flags
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ebics",
	Short: "EBICS client for key management and statement downloads",
	Long: `ebics runs EBICS H004 operations against a bank.

A new subscriber first exchanges keys:

  ebics ini    # submit the signature key
  ebics hia    # submit the encryption and authentication keys
  # send the initialisation letter, wait for activation
  ebics hpb    # retrieve and verify the bank keys

Afterwards statements can be downloaded:

  ebics sta --start 2024-04-01 --end 2024-04-30
  ebics vmk

The key ring is sealed with the configured passphrase and stored after every
successful key management step.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ebics.yaml",
		"Path to the configuration file")

	// Key management
	rootCmd.AddCommand(hevCmd)
	rootCmd.AddCommand(iniCmd)
	rootCmd.AddCommand(hiaCmd)
	rootCmd.AddCommand(hpbCmd)
	rootCmd.AddCommand(stateCmd)

	// Downloads
	rootCmd.AddCommand(hpdCmd)
	rootCmd.AddCommand(haaCmd)
	rootCmd.AddCommand(staCmd)
	rootCmd.AddCommand(vmkCmd)
}
