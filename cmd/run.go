package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/lowpan/rpl/core"
	"github.com/lowpan/rpl/state"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the RPL node",
	Long:  `This will run the RPL control plane on the current host. It needs permission to open a raw ICMPv6 socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.ReadFile(nodeConfigPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", nodeConfigPath, err)
		}

		var conf state.Config
		if err := yaml.Unmarshal(file, &conf); err != nil {
			return err
		}
		conf.ApplyDefaults()
		if err := state.ConfigValidator(&conf); err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		return core.Start(&conf, level)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("verbose", "v", false, "enable debug logging")
}
