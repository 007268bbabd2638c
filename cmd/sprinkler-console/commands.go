package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/console"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

// request connects, sends one request and waits for the response of type T.
func request[T any](cmd *cobra.Command, send func(*console.Client) error) (T, error) {
	var zero T

	client, err := connect(cmd.Context())
	if err != nil {
		return zero, err
	}
	defer client.Close()

	if err := send(client); err != nil {
		return zero, fmt.Errorf("failed to send request: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := console.WaitFor[T](ctx, client.Events())
	if err != nil {
		return zero, fmt.Errorf("no response from relay: %w", err)
	}
	return resp, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the controller is connected",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := request[protocol.StatusResponse](cmd, (*console.Client).Status)
		if err != nil {
			return err
		}
		if resp.IsControllerConnected {
			fmt.Println("controller: connected")
		} else {
			fmt.Println("controller: not connected")
		}
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <zone> <on|off>",
	Short: "Switch a zone on or off",
	Example: `  sprinkler-console toggle zone1 on
  sprinkler-console toggle zone3 off`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		zone, err := config.ParseZone(args[0])
		if err != nil {
			return err
		}
		activate, err := parseOnOff(args[1])
		if err != nil {
			return err
		}

		resp, err := request[protocol.ToggleZoneResponse](cmd, func(c *console.Client) error {
			return c.ToggleZone(zone, activate)
		})
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s not switched: %s", zone, resp.Error)
		}
		fmt.Printf("%s switched %s\n", zone, args[1])
		return nil
	},
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Show or replace the relay's schedules",
}

var schedulesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the schedules as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := request[protocol.GetConfigResponse](cmd, (*console.Client).GetConfig)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(config.Config{
			Schedules:    resp.Schedules,
			StaggerOn:    resp.StaggerOn,
			StaggerZones: resp.StaggerZones,
		})
		if err != nil {
			return fmt.Errorf("failed to encode schedules: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var scheduleFile string

// scheduleDocument is the file accepted by "schedules set". Omitted stagger
// flags keep the relay's values.
type scheduleDocument struct {
	Schedules    []config.Schedule `yaml:"schedules"`
	StaggerOn    *bool             `yaml:"stagger_on"`
	StaggerZones *bool             `yaml:"stagger_zones"`
}

var schedulesSetCmd = &cobra.Command{
	Use:   "set -f <file>",
	Short: "Replace every schedule with the contents of a YAML file",
	Long: `Replace every schedule with the contents of a YAML file.

The file has the same layout as the output of "schedules get". The relay
validates and saves it before the new schedules take effect.`,
	Example: `  sprinkler-console schedules get > schedules.yaml
  $EDITOR schedules.yaml
  sprinkler-console schedules set -f schedules.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readScheduleFile(scheduleFile)
		if err != nil {
			return err
		}

		resp, err := request[protocol.SetScheduleResponse](cmd, func(c *console.Client) error {
			return c.SetSchedules(doc.Schedules, doc.StaggerOn, doc.StaggerZones)
		})
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("relay rejected the schedules: %s", resp.Error)
		}
		fmt.Printf("%d schedule(s) saved\n", len(doc.Schedules))
		return nil
	},
}

func readScheduleFile(path string) (scheduleDocument, error) {
	var doc scheduleDocument

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg := config.Config{Schedules: doc.Schedules}.Normalize()
	if err := cfg.Validate(); err != nil {
		return doc, fmt.Errorf("invalid schedules in %s: %w", path, err)
	}
	doc.Schedules = cfg.Schedules
	return doc, nil
}

func init() {
	schedulesSetCmd.Flags().StringVarP(&scheduleFile, "file", "f", "", "YAML file with the new schedules")
	_ = schedulesSetCmd.MarkFlagRequired("file")

	schedulesCmd.AddCommand(schedulesGetCmd)
	schedulesCmd.AddCommand(schedulesSetCmd)
}
