package controller

import (
	"context"
	"encoding/binary"
	"net"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
	"github.com/reeslabree/sprinkler-controller/internal/relay"
	"github.com/reeslabree/sprinkler-controller/internal/wsclient"
)

// fakeSession is a connected Session that records what the agent does.
type fakeSession struct {
	mu          sync.Mutex
	connected   bool
	disconnects int
	sent        []string
}

func (f *fakeSession) Connect(ctx context.Context, buffers *wsclient.Buffers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeSession) SendText(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(payload))
	return nil
}

func (f *fakeSession) Receive(timeout time.Duration) ([]byte, error) {
	return nil, protocol.NewTimeoutError("read timed out", nil)
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Endpoint() wsclient.Endpoint {
	return wsclient.Endpoint{Host: "127.0.0.1", Port: 9001, Path: "/"}
}

func (f *fakeSession) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// serverFrame builds an unmasked frame as the relay sends it.
func serverFrame(opcode byte, payload []byte) []byte {
	frame := []byte{0x80 | opcode}
	if len(payload) < 126 {
		frame = append(frame, byte(len(payload)))
	} else {
		frame = append(frame, 126, 0, 0)
		binary.BigEndian.PutUint16(frame[2:], uint16(len(payload)))
	}
	return append(frame, payload...)
}

func toggleText(zone uint8, activate bool) []byte {
	return protocol.MustEncode(protocol.TypeToggleZone, protocol.ToggleZonePayload{Zone: zone, Activate: activate})
}

func TestAgent_HandleMessage(t *testing.T) {
	tests := []struct {
		name        string
		text        []byte
		wantToggles uint64
		wantHigh    []uint8
	}{
		{
			name:        "toggle zone on",
			text:        toggleText(2, true),
			wantToggles: 1,
			wantHigh:    []uint8{2},
		},
		{
			name:        "toggle zone off",
			text:        toggleText(2, false),
			wantToggles: 1,
		},
		{
			name: "zone out of range",
			text: toggleText(6, true),
		},
		{
			name: "keepAlive response",
			text: protocol.MustEncode(protocol.TypeKeepAliveResponse, protocol.KeepAliveResponse{}),
		},
		{
			name: "relayed user parse error",
			text: []byte(protocol.UserParseErrorPrefix + "unknown variant `foo`"),
		},
		{
			name: "garbage",
			text: []byte("not json"),
		},
		{
			name: "toggle missing activate",
			text: []byte(`{"type":"toggleZone","payload":{"zone":1}}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := NewZoneBank(config.ZoneCount)
			agent := NewAgent(&fakeSession{}, bank, nil, Options{})

			agent.HandleMessage(tt.text)

			if got := agent.Toggles(); got != tt.wantToggles {
				t.Errorf("Toggles() = %d, want %d", got, tt.wantToggles)
			}
			high := map[uint8]bool{}
			for _, z := range tt.wantHigh {
				high[z] = true
			}
			for i, level := range bank.Status() {
				if want := LevelFor(high[uint8(i)]); level != want {
					t.Errorf("zone %d = %v, want %v", i, level, want)
				}
			}
		})
	}
}

func TestAgent_ConsumeReassemblesFrames(t *testing.T) {
	bank := NewZoneBank(config.ZoneCount)
	session := &fakeSession{connected: true}
	agent := NewAgent(session, bank, nil, Options{})

	stream := append(serverFrame(protocol.OpcodeText, toggleText(0, true)),
		serverFrame(protocol.OpcodeText, toggleText(1, true))...)
	stream = append(stream, serverFrame(protocol.OpcodeText, toggleText(2, true))...)

	// Deliver the stream in awkward chunks.
	var acc []byte
	for _, cut := range [][2]int{{0, 1}, {1, 30}, {30, len(stream) - 5}, {len(stream) - 5, len(stream)}} {
		acc = agent.consume(append(acc, stream[cut[0]:cut[1]]...))
	}

	if len(acc) != 0 {
		t.Errorf("consume() left %d bytes, want 0", len(acc))
	}
	if got := agent.Toggles(); got != 3 {
		t.Errorf("Toggles() = %d, want 3", got)
	}
	for zone := uint8(0); zone < 3; zone++ {
		if bank.Level(zone) != High {
			t.Errorf("zone %d = %v, want high", zone, bank.Level(zone))
		}
	}
}

func TestAgent_ConsumeExtendedLength(t *testing.T) {
	bank := NewZoneBank(config.ZoneCount)
	agent := NewAgent(&fakeSession{connected: true}, bank, nil, Options{})

	// Pad the JSON past 125 bytes so the relay would use a 16-bit length.
	padded := []byte(`{"type":"toggleZone","payload":{"zone":4,"activate":true}}`)
	for len(padded) < 200 {
		padded = append(padded, ' ')
	}

	if rest := agent.consume(serverFrame(protocol.OpcodeText, padded)); len(rest) != 0 {
		t.Errorf("consume() left %d bytes, want 0", len(rest))
	}
	if bank.Level(4) != High {
		t.Errorf("zone 4 = %v, want high", bank.Level(4))
	}
}

func TestAgent_ConsumeCloseFrame(t *testing.T) {
	bank := NewZoneBank(config.ZoneCount)
	session := &fakeSession{connected: true}
	agent := NewAgent(session, bank, nil, Options{})

	stream := append(serverFrame(protocol.OpcodeClose, nil), serverFrame(protocol.OpcodeText, toggleText(0, true))...)
	if rest := agent.consume(stream); rest != nil {
		t.Errorf("consume() = %v, want nil after close", rest)
	}

	if session.Disconnects() != 1 {
		t.Errorf("Disconnect() calls = %d, want 1", session.Disconnects())
	}
	if agent.Toggles() != 0 {
		t.Error("frames after close must not be applied")
	}
}

func TestAgent_ConsumeBadFrame(t *testing.T) {
	session := &fakeSession{connected: true}
	agent := NewAgent(session, NewZoneBank(0), nil, Options{})

	// Non-final frames are not supported.
	if rest := agent.consume([]byte{0x01, 0x00}); rest != nil {
		t.Errorf("consume() = %v, want nil", rest)
	}
	if session.Disconnects() != 1 {
		t.Errorf("Disconnect() calls = %d, want 1", session.Disconnects())
	}
}

func TestAgent_ConnectIdentifies(t *testing.T) {
	session := &fakeSession{}
	agent := NewAgent(session, NewZoneBank(0), nil, Options{})

	if err := agent.connect(context.Background()); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if len(session.sent) != 1 || session.sent[0] != protocol.IdentController {
		t.Errorf("sent = %v, want [%q]", session.sent, protocol.IdentController)
	}
	if agent.epoch.Load() != 1 {
		t.Errorf("epoch = %d, want 1", agent.epoch.Load())
	}
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}.withDefaults()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"keep-alive", opts.KeepAliveInterval, 2500 * time.Millisecond},
		{"read timeout", opts.ReadTimeout, 100 * time.Millisecond},
		{"idle poll", opts.IdlePoll, 50 * time.Millisecond},
		{"reconnect backoff", opts.ReconnectBackoff, 5 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if opts.BufferSize != wsclient.DefaultBufferSize {
		t.Errorf("BufferSize = %d, want %d", opts.BufferSize, wsclient.DefaultBufferSize)
	}
}

// liveRelay starts an in-process relay and returns its hub and address.
func liveRelay(t *testing.T) (*relay.Hub, wsclient.Endpoint, string) {
	t.Helper()
	hub := relay.NewHub(nil)
	router := relay.NewRouter(hub, config.NewHandle(config.Default(), nil), nil)
	srv := relay.NewServer(relay.Config{Host: "127.0.0.1"}, hub, router)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return hub, wsclient.Endpoint{Host: host, Port: port, Path: "/"}, "ws://" + ts.Listener.Addr().String() + "/"
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fastOptions() Options {
	return Options{
		KeepAliveInterval: 20 * time.Millisecond,
		ReadTimeout:       10 * time.Millisecond,
		IdlePoll:          5 * time.Millisecond,
		ReconnectBackoff:  20 * time.Millisecond,
	}
}

func TestAgent_EndToEnd(t *testing.T) {
	hub, endpoint, url := liveRelay(t)
	bank := NewZoneBank(config.ZoneCount)
	agent := NewAgent(wsclient.New(endpoint, wsclient.Options{}), bank, nil, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	waitFor(t, "controller registration", func() bool { return hub.IsRegistered(relay.RoleController) })
	waitFor(t, "controller keepAlive", hub.ControllerConnected)

	user, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer user.Close()
	if err := user.WriteMessage(websocket.TextMessage, []byte(protocol.IdentUser)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "user registration", func() bool { return hub.IsRegistered(relay.RoleUser) })

	if err := user.WriteMessage(websocket.TextMessage, toggleText(3, true)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "zone 3 high", func() bool { return bank.Level(3) == High })

	if err := user.WriteMessage(websocket.TextMessage, toggleText(3, false)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "zone 3 low", func() bool { return bank.Level(3) == Low })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestAgent_ReconnectsAfterEviction(t *testing.T) {
	hub, endpoint, _ := liveRelay(t)
	agent := NewAgent(wsclient.New(endpoint, wsclient.Options{}), NewZoneBank(0), nil, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	waitFor(t, "first connection", func() bool { return agent.epoch.Load() == 1 && hub.IsRegistered(relay.RoleController) })

	// Registering another controller evicts the agent's connection.
	hub.Register(relay.RoleController, relay.NewOutbox())

	waitFor(t, "reconnection", func() bool { return agent.epoch.Load() >= 2 })
	waitFor(t, "controller registered again", func() bool { return hub.IsRegistered(relay.RoleController) })

	cancel()
	<-done
}
