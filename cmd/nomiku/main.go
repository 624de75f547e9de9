// Nomiku is a command-line client for Nomiku sous-vide cookers.
//
// It lists the cookers on an account, streams their live state and sends
// commands. Credentials come from the config file or the NOMIKU_TENDER_*
// environment variables.
//
// Usage:
//
//	nomiku [command] [flags]
//
// See 'nomiku --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	email      string
	password   string
	format     string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "nomiku",
		Short: "Nomiku sous-vide client",
		Long: `A command-line client for Nomiku sous-vide cookers.

Lists the cookers on an account, streams their live state over MQTT and
sends commands through the Tender service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("NOMIKU_CONFIG"), "Config file (defaults are used when empty)")
	root.PersistentFlags().StringVar(&flags.email, "email", "", "Account email (overrides config)")
	root.PersistentFlags().StringVar(&flags.password, "password", "", "Account password (overrides config)")
	root.PersistentFlags().StringVar(&flags.format, "format", "text", "Output format (text, json)")

	root.AddCommand(
		newDevicesCmd(flags),
		newWatchCmd(flags),
		newSetCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nomiku %s (commit: %s)\n", version, commit)
		},
	}
}
