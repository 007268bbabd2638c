package console

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
	"github.com/reeslabree/sprinkler-controller/internal/relay"
)

func newTestRelay(t *testing.T) (*relay.Hub, *config.Handle, string) {
	t.Helper()
	hub := relay.NewHub(nil)
	handle := config.NewHandle(config.Default(), nil)
	srv := relay.NewServer(relay.Config{Host: "127.0.0.1"}, hub, relay.NewRouter(hub, handle, nil))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	return hub, handle, "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
}

func dialTest(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		path string
		want string
	}{
		{"192.168.1.10", 9001, "/", "ws://192.168.1.10:9001/"},
		{"relay.local", 9001, "", "ws://relay.local:9001/"},
		{"fe80::1", 8080, "/ws", "ws://[fe80::1]:8080/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := URL(tt.host, tt.port, tt.path); got != tt.want {
				t.Errorf("URL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_Status(t *testing.T) {
	hub, _, url := newTestRelay(t)
	client := dialTest(t, url)

	waitUntil(t, func() bool { return hub.IsRegistered(relay.RoleUser) })

	if err := client.Status(); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	resp, err := WaitFor[protocol.StatusResponse](testContext(t), client.Events())
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	if resp.IsControllerConnected {
		t.Error("IsControllerConnected = true with no controller")
	}
}

func TestClient_ToggleZoneWithoutController(t *testing.T) {
	_, _, url := newTestRelay(t)
	client := dialTest(t, url)

	if err := client.ToggleZone(config.Zone3, true); err != nil {
		t.Fatalf("ToggleZone() error = %v", err)
	}
	resp, err := WaitFor[protocol.ToggleZoneResponse](testContext(t), client.Events())
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	if resp.Success {
		t.Error("Success = true with no controller")
	}
	if resp.Error != "controller not connected" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestClient_SetAndGetSchedules(t *testing.T) {
	_, handle, url := newTestRelay(t)
	client := dialTest(t, url)

	stagger := true
	schedules := []config.Schedule{{
		Name:             "morning",
		Days:             []config.Day{config.Monday, config.Thursday},
		ActivePeriods:    []config.ActivePeriod{{Zone: config.Zone1, DurationMinutes: 10}, {Zone: config.Zone2, DurationMinutes: 5}},
		StartTimeMinutes: 360,
		IsActive:         true,
	}}

	if err := client.SetSchedules(schedules, nil, &stagger); err != nil {
		t.Fatalf("SetSchedules() error = %v", err)
	}
	setResp, err := WaitFor[protocol.SetScheduleResponse](testContext(t), client.Events())
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	if !setResp.Success {
		t.Fatalf("SetScheduleResponse = %+v, want success", setResp)
	}

	if got := handle.Get(); len(got.Schedules) != 1 || !got.StaggerZones || got.StaggerOn {
		t.Errorf("relay config = %+v", got)
	}

	if err := client.GetConfig(); err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	cfg, err := WaitFor[protocol.GetConfigResponse](testContext(t), client.Events())
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Name != "morning" {
		t.Errorf("Schedules = %+v", cfg.Schedules)
	}
	if len(cfg.Schedules[0].ActivePeriods) != 2 || cfg.Schedules[0].ActivePeriods[1].Zone != config.Zone2 {
		t.Errorf("ActivePeriods = %+v", cfg.Schedules[0].ActivePeriods)
	}
	if !cfg.StaggerZones {
		t.Error("StaggerZones = false, want true")
	}
}

func TestClient_RejectedSchedule(t *testing.T) {
	_, _, url := newTestRelay(t)
	client := dialTest(t, url)

	bad := []config.Schedule{{Name: "late", StartTimeMinutes: config.MinutesPerDay}}
	if err := client.SetSchedules(bad, nil, nil); err != nil {
		t.Fatalf("SetSchedules() error = %v", err)
	}
	resp, err := WaitFor[protocol.SetScheduleResponse](testContext(t), client.Events())
	if err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("SetScheduleResponse = %+v, want failure with reason", resp)
	}
}

func TestClient_KeepAlive(t *testing.T) {
	_, _, url := newTestRelay(t)
	client := dialTest(t, url)

	if err := client.KeepAlive(); err != nil {
		t.Fatalf("KeepAlive() error = %v", err)
	}
	if _, err := WaitFor[protocol.KeepAliveResponse](testContext(t), client.Events()); err != nil {
		t.Fatalf("WaitFor() error = %v", err)
	}
}

func TestClient_EvictedByNewUser(t *testing.T) {
	_, _, url := newTestRelay(t)
	first := dialTest(t, url)
	_ = dialTest(t, url)

	// The first connection is closed by the relay.
	_, err := WaitFor[protocol.StatusResponse](testContext(t), first.Events())
	if err == nil {
		t.Fatal("WaitFor() on evicted client error = nil")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("evicted client was not closed by the relay")
	}
}

func TestClient_Closed(t *testing.T) {
	_, _, url := newTestRelay(t)
	client := dialTest(t, url)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Status(); !errors.Is(err, ErrClosed) {
		t.Errorf("Status() after Close error = %v, want %v", err, ErrClosed)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := Dial(ctx, "ws://127.0.0.1:1/"); err == nil {
		t.Error("Dial() to a closed port error = nil")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
