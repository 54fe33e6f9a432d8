// Package cmd implements the listings command-line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	// cfgFile overrides CONFIG_PATH.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "listings",
		Short:         "Listing search with lifecycle-aware ranking",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or config.yml)")

	rootCmd.AddCommand(
		newServeCommand(),
		newReclassifyCommand(),
		newReindexCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)
}
