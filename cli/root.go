// Package cli provides the fetcher's command-line entry point: persistent
// flags bound to viper keys, an init-time command registration pass, and a
// single RootCmd other subcommands attach to. This binary runs a single
// resumable fetch to completion and exits.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCmd is the fetcher's entry point: "fetcher run <config_name>" and
// "fetcher version" attach to it in run.go/version.go.
var RootCmd = &cobra.Command{
	Use:   "fetcher",
	Short: "a resumable, multi-protocol data acquisition engine",
	Long: `fetcher runs one resumable bundle-fetch job to completion.

A job is selected by config_name, which resolves to a registered recipe
(locator set, loader, storage wiring). Credentials, storage backend, KV
store, and concurrency are supplied via flags or environment variables
(FETCHER_* by default; see "fetcher run --help").`,
}

func init() {
	cobra.OnInitialize(initConfig)
	viper.SetEnvPrefix("FETCHER")
	viper.AutomaticEnv()
}

func initConfig() {
	// Configuration is loaded primarily through config.LoadFetcherConfig
	// (env vars); Viper is retained here only to let cobra-bound flags
	// override the same keys, giving flags precedence over env vars.
}

// Execute runs the root command, printing any returned error to stderr and
// exiting non-zero.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
