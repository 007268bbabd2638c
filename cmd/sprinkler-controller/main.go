// Sprinkler-controller runs on the irrigation device. It keeps a connection
// to the relay and switches zone outputs on the relay's commands.
//
// Usage:
//
//	sprinkler-controller run [flags]
//	sprinkler-controller discover
//
// Settings come from flags, SPRINKLER_* environment variables or
// controller.yaml in the user config directory, in that order of precedence.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sprinkler-controller",
	Short: "Sprinkler device agent",
	Long: `Connects the irrigation device to the sprinkler relay.

The agent identifies as "controller", sends a keep-alive every 2.5s and
applies toggleZone commands to the zone outputs. When the connection drops
it reconnects every 5s.`,
	Version: version.Version,
}

// settings is the viper instance shared by the subcommands
var settings = viper.New()

// Setting keys, also the flag names
const (
	keyConfig           = "config"
	keyLogLevel         = "log-level"
	keyRelayHost        = "relay-host"
	keyRelayPort        = "relay-port"
	keyRelayPath        = "relay-path"
	keyZones            = "zones"
	keyKeepAlive        = "keep-alive"
	keyReadTimeout      = "read-timeout"
	keyReconnectBackoff = "reconnect-backoff"
	keyDiscoverTimeout  = "discover-timeout"
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String(keyConfig, "", "Settings file (default: <config dir>/sprinkler/controller.yaml)")
	rootCmd.PersistentFlags().String(keyLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration(keyDiscoverTimeout, 5*time.Second, "How long to browse mDNS for a relay")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadSettings binds cmd's flags and reads the optional settings file.
func loadSettings(cmd *cobra.Command) error {
	settings.SetEnvPrefix("SPRINKLER")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := settings.GetString(keyConfig); path != "" {
		settings.SetConfigFile(path)
	} else {
		settings.SetConfigName("controller")
		settings.SetConfigType("yaml")
		if dir, err := config.GetConfigDir(); err == nil {
			settings.AddConfigPath(dir)
		}
		settings.AddConfigPath(".")
	}

	if err := settings.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read settings: %w", err)
		}
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("sprinkler-controller"))
	},
}
