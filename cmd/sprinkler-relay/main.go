// Sprinkler-relay is the message hub between the sprinkler controller and
// user consoles. It also runs the watering schedules.
//
// Usage:
//
//	sprinkler-relay serve [flags]
//
// See 'sprinkler-relay serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/discovery"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/relay"
	"github.com/reeslabree/sprinkler-controller/internal/schedule"
	"github.com/reeslabree/sprinkler-controller/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sprinkler-relay",
	Short: "Sprinkler relay and schedule runner",
	Long: `Relays zone commands between user consoles and the sprinkler controller.

The controller and each console open a WebSocket connection and identify
themselves as "controller" or "user". The relay forwards toggle requests to
the controller, reports controller liveness to the user and fires the stored
watering schedules.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command and flags
var (
	host       string
	port       int
	configPath string
	logLevel   string
	advertise  bool
	instance   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Long: `Start the relay on plain TCP (default port 9001).

Schedules are loaded from --config, or from schedules.yaml in the user config
directory, and saved there whenever a console replaces them.`,
	Example: `  # Listen on all interfaces, default port
  sprinkler-relay serve

  # Advertise over mDNS so controllers find the relay on their own
  sprinkler-relay serve --advertise

  # Custom port and schedule file
  sprinkler-relay serve --port 9100 --config /etc/sprinkler/schedules.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	serveCmd.Flags().IntVar(&port, "port", relay.DefaultPort, "Listen port")
	serveCmd.Flags().StringVar(&configPath, "config", "", "Schedule file (default: <config dir>/sprinkler/schedules.yaml)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&advertise, "advertise", false, "Advertise the relay over mDNS as "+discovery.ServiceType)
	serveCmd.Flags().StringVar(&instance, "instance", "", "mDNS instance name (default: sprinkler-relay-<hostname>)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}

	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	store, err := config.NewStore(configPath)
	if err != nil {
		return err
	}
	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	logging.Info("Schedules loaded",
		zap.String("path", store.Path),
		zap.Int("schedules", len(cfg.Schedules)),
	)

	handle := config.NewHandle(cfg, store)
	hub := relay.NewHub(nil)

	engine := schedule.New(hub, nil, schedule.Options{})
	engine.Start(cfg)
	defer engine.Close()

	srv := relay.NewServer(relay.Config{Host: host, Port: port}, hub, relay.NewRouter(hub, handle, engine))

	if advertise {
		adv, err := discovery.Advertise(instance, port, "/")
		if err != nil {
			logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		} else {
			defer adv.Shutdown()
		}
	}

	return srv.Start()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Line("sprinkler-relay"))
	},
}
