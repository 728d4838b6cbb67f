// Package cli implements the lchbot command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"lchbot/internal/config"
	"lchbot/pkg/logger"
)

// globalFlags holds flags shared by all commands.
type globalFlags struct {
	ConfigPath string
	Verbose    bool
}

var flags globalFlags

// loadedConfig is the configuration snapshot for the running command,
// populated in PersistentPreRunE.
var loadedConfig *config.Config

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lchbot",
		Short: "lchbot - OneBot plugin runtime",
		Long: `lchbot receives events pushed by a OneBot-compatible gateway,
dispatches them through a priority-ordered plugin chain and sends
actions back through the gateway's HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}

			logCfg := cfg.Log
			if flags.Verbose {
				logCfg.Level = "debug"
			}
			if err := logger.Init(logCfg); err != nil {
				return err
			}

			loadedConfig = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
