package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/controller"
	"github.com/reeslabree/sprinkler-controller/internal/discovery"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/relay"
	"github.com/reeslabree/sprinkler-controller/internal/wsclient"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the relay and drive the zones",
	Long: `Connect to the relay and apply its zone commands until interrupted.

Without --relay-host the relay is located over mDNS (` + discovery.ServiceType + `).
On exit every zone is switched off.`,
	Example: `  # Find the relay over mDNS
  sprinkler-controller run

  # Fixed relay address
  sprinkler-controller run --relay-host 192.168.1.20 --relay-port 9001

  # Same, from the environment
  SPRINKLER_RELAY_HOST=192.168.1.20 sprinkler-controller run`,
	RunE: runController,
}

func init() {
	runCmd.Flags().String(keyRelayHost, "", "Relay address (empty = discover over mDNS)")
	runCmd.Flags().Int(keyRelayPort, relay.DefaultPort, "Relay port")
	runCmd.Flags().String(keyRelayPath, "/", "Relay upgrade path")
	runCmd.Flags().Int(keyZones, config.ZoneCount, "Number of zone outputs")
	runCmd.Flags().Duration(keyKeepAlive, controller.DefaultKeepAliveInterval, "Keep-alive interval")
	runCmd.Flags().Duration(keyReadTimeout, controller.DefaultReadTimeout, "Read poll timeout")
	runCmd.Flags().Duration(keyReconnectBackoff, controller.DefaultReconnectBackoff, "Delay between connection attempts")
}

func runController(cmd *cobra.Command, args []string) error {
	if err := loadSettings(cmd); err != nil {
		return err
	}
	if err := logging.Initialize(settings.GetString(keyLogLevel)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint, err := resolveRelay(ctx)
	if err != nil {
		return err
	}

	bank := controller.NewZoneBank(settings.GetInt(keyZones))
	defer bank.AllOff()

	session := wsclient.New(endpoint, wsclient.Options{})
	agent := controller.NewAgent(session, bank, nil, controller.Options{
		KeepAliveInterval: settings.GetDuration(keyKeepAlive),
		ReadTimeout:       settings.GetDuration(keyReadTimeout),
		ReconnectBackoff:  settings.GetDuration(keyReconnectBackoff),
	})

	return agent.Run(ctx)
}

// resolveRelay returns the configured relay, or the first one answering
// over mDNS.
func resolveRelay(ctx context.Context) (wsclient.Endpoint, error) {
	if relayHost := settings.GetString(keyRelayHost); relayHost != "" {
		return wsclient.Endpoint{
			Host: relayHost,
			Port: settings.GetInt(keyRelayPort),
			Path: settings.GetString(keyRelayPath),
		}, nil
	}

	timeout := settings.GetDuration(keyDiscoverTimeout)
	logging.Info("Looking for a relay over mDNS", zap.Duration("timeout", timeout))

	found, err := discovery.FindRelay(ctx, timeout)
	if err != nil {
		return wsclient.Endpoint{}, fmt.Errorf("no relay configured and none discovered: %w", err)
	}
	logging.Info("Relay discovered", zap.String("relay", found.String()))
	return found.Endpoint(), nil
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List relays advertised on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadSettings(cmd); err != nil {
			return err
		}

		scanner := discovery.NewScanner()
		scanner.Timeout = settings.GetDuration(keyDiscoverTimeout)

		fmt.Printf("Scanning for %s services (%v)...\n", discovery.ServiceType, scanner.Timeout)
		relays, err := scanner.ScanForRelays(cmd.Context())
		if err != nil {
			return err
		}
		if len(relays) == 0 {
			fmt.Println("No relays found.")
			return nil
		}
		for _, r := range relays {
			line := r.URL()
			if v := r.Version(); v != "" {
				line += "  " + v
			}
			fmt.Printf("  %-32s %s\n", r.Instance, line)
		}
		return nil
	},
}
