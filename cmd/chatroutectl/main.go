// chatroutectl checks chatroute configuration files offline.
//
// It builds the same route table and dispatcher as the daemon, without a
// Discord connection or database, so route declarations can be reviewed and
// tried before a deploy.
//
// Usage:
//
//	chatroutectl validate -c config.yaml
//	chatroutectl routes -c config.yaml -o json
//	chatroutectl match -c config.yaml --admin "/rules"
//	chatroutectl match -c config.yaml --bot-name routebot "/ping@routebot"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	outputFmt  string
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatroutectl",
		Short: "Validate and try chatroute route tables",
		Long: `chatroutectl loads a chatroute config file and builds its route table
exactly like the daemon does.

Use it to validate a config before deploying it, to list the resulting
routes, and to dry-run a message through the dispatcher.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelError
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log dispatcher decisions to stderr")

	cmd.AddCommand(validateCmd())
	cmd.AddCommand(routesCmd())
	cmd.AddCommand(matchCmd())
	return cmd
}
