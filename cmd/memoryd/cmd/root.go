package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var logLevel string

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Memory core daemon for an AI desktop companion",
	Long: `memoryd runs the companion's memory core: UnifiedContextManager,
HybridRetriever, LifecycleManager, and the rest of the pipeline described
by the project's SPEC_FULL.md, served as a long-running HTTP daemon
(serve), with stats and export subcommands for inspecting the store.`,
}

// Execute runs the root command, exiting the process on error the way
// killallgit-ryan's cmd.Execute does.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "config file path")
	viper.BindPFlag("config_file", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}
