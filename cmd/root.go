package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var nodeConfigPath = "rpl.yaml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rpld",
	Short: "RPL routing daemon",
	Long: `rpld runs the control plane of the IPv6 Routing Protocol for Low-Power
and Lossy Networks (RPL, RFC 6550) on a single interface: it exchanges DIS,
DIO, DAO and DCO messages with its neighbours, selects a preferred parent
through OF0 or MRHOF, and maintains the downward routes of its sub-DODAG.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&nodeConfigPath, "config", "c", nodeConfigPath, "node configuration file")
}
