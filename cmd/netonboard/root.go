package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Args holds the persistent flags.
type Args struct {
	ConfigFile string
	LogLevel   string
	LogFormat  string
}

var (
	args = &Args{}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "netonboard",
	Short:         "netonboard discovers network devices and records them in inventory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(&args.ConfigFile, "config", "", "configuration file (default is ./netonboard.yaml or ~/.config/netonboard/config.yaml)")

	rootCmd.PersistentFlags().
		StringVar(&args.LogLevel, "log-level", "", "set logging level - trace, debug, info, warn, error")

	rootCmd.PersistentFlags().
		StringVar(&args.LogFormat, "log-format", "json", "log output format - json, text")
}
