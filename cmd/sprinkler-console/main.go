// Sprinkler-console is the user client of the sprinkler relay.
//
// Without a subcommand it opens an interactive dashboard. The status,
// toggle and schedules subcommands send a single request and print the
// answer.
//
// Usage:
//
//	sprinkler-console [command] [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reeslabree/sprinkler-controller/internal/console"
	"github.com/reeslabree/sprinkler-controller/internal/discovery"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/relay"
	"github.com/reeslabree/sprinkler-controller/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	relayURL        string
	relayHost       string
	relayPort       int
	logLevel        string
	timeout         time.Duration
	discoverTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sprinkler-console",
	Short: "Sprinkler relay console",
	Long: `Control the sprinkler zones and schedules through the relay.

Running without a command opens the interactive dashboard. The relay keeps a
single user connection, so the console replaces any other open console.

Without --relay or --host the relay is located over mDNS.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Quiet by default so log lines do not tear the dashboard
		return logging.Initialize(logLevel)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !console.IsTerminal() {
			return console.ErrNotTerminal
		}
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()
		return console.Run(client)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&relayURL, "relay", "", "Relay URL, e.g. ws://192.168.1.20:9001/")
	rootCmd.PersistentFlags().StringVar(&relayHost, "host", "", "Relay address")
	rootCmd.PersistentFlags().IntVar(&relayPort, "port", relay.DefaultPort, "Relay port (with --host)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for a response")
	rootCmd.PersistentFlags().DurationVar(&discoverTimeout, "discover-timeout", 5*time.Second, "How long to browse mDNS for a relay")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(schedulesCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveURL picks the relay URL from the flags, or from mDNS.
func resolveURL(ctx context.Context) (string, error) {
	switch {
	case relayURL != "":
		return relayURL, nil
	case relayHost != "":
		return console.URL(relayHost, relayPort, "/"), nil
	}

	found, err := discovery.FindRelay(ctx, discoverTimeout)
	if err != nil {
		return "", fmt.Errorf("no relay given and none discovered (use --relay or --host): %w", err)
	}
	return found.URL(), nil
}

func connect(ctx context.Context) (*console.Client, error) {
	url, err := resolveURL(ctx)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return console.Dial(dialCtx, url)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("sprinkler-console"))
	},
}
