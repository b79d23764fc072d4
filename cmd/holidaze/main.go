/*
Package main is the holidaze command line client.

It is responsible for loading configuration, initializing the global logging system,
opening the shared key-value store and running one command against the booking API,
or, with serve, the companion server that keeps browser tabs in sync.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"holidaze/internal/configs"
	"holidaze/internal/pkg/errs"
	"holidaze/internal/pkg/logx"
)

var (
	cfgFile  string
	logLevel string

	cfg *configs.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "holidaze",
	Short:         "Holidaze venue booking client",
	Long:          "Holidaze signs in to the Holidaze booking API, keeps favorites and profile images in a local store shared by every open client, and books venues.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := configs.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		cfg = loaded

		logx.InitGlobalLogger(cfg.IsDevelopment(), os.Stderr)

		level := logLevel
		if level == "" {
			level = cfg.LogLevel
		}
		if level == "" && cmd.Name() != "serve" {
			level = "warn"
		}
		return logx.SetLevel(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", message(err))
		os.Exit(1)
	}
}

// message returns the user-facing text for err. Failures outside the application's error
// codes (flag parsing, configuration) are shown as they are.
func message(err error) string {
	if !errs.IsCoded(err) {
		return err.Error()
	}
	return errs.From(err).Message
}
