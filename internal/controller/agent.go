package controller

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
	"github.com/reeslabree/sprinkler-controller/internal/wsclient"
)

// Defaults for Options.
const (
	DefaultKeepAliveInterval = 2500 * time.Millisecond
	DefaultReadTimeout       = 100 * time.Millisecond
	DefaultIdlePoll          = 50 * time.Millisecond
	DefaultReconnectBackoff  = 5 * time.Second
)

// Session is the relay connection the agent drives. *wsclient.Session
// implements it.
type Session interface {
	Connect(ctx context.Context, buffers *wsclient.Buffers) error
	SendText(payload []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Disconnect() error
	IsConnected() bool
	Endpoint() wsclient.Endpoint
}

// Options tunes the agent loops. Zero values select the defaults.
type Options struct {
	KeepAliveInterval time.Duration
	ReadTimeout       time.Duration
	IdlePoll          time.Duration
	ReconnectBackoff  time.Duration
	BufferSize        int
}

func (o Options) withDefaults() Options {
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.IdlePoll <= 0 {
		o.IdlePoll = DefaultIdlePoll
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = DefaultReconnectBackoff
	}
	if o.BufferSize <= 0 {
		o.BufferSize = wsclient.DefaultBufferSize
	}
	return o
}

// Agent keeps the device connected to the relay and applies the zone
// commands it receives.
type Agent struct {
	session Session
	driver  ZoneDriver
	clock   clockwork.Clock
	opts    Options

	// incremented on every successful connect so the read loop can drop
	// bytes left over from a previous connection
	epoch atomic.Uint64

	toggles atomic.Uint64
}

// NewAgent creates an agent. A nil clock selects the real clock.
func NewAgent(session Session, driver ZoneDriver, clock clockwork.Clock, opts Options) *Agent {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Agent{
		session: session,
		driver:  driver,
		clock:   clock,
		opts:    opts.withDefaults(),
	}
}

// Toggles returns the number of zone commands applied to the driver.
func (a *Agent) Toggles() uint64 {
	return a.toggles.Load()
}

// Run runs the connection, keep-alive and read loops until ctx is done, then
// disconnects.
func (a *Agent) Run(ctx context.Context) error {
	logging.Info("Controller agent starting",
		zap.String("relay", a.session.Endpoint().String()),
	)

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){a.connectionLoop, a.keepAliveLoop, a.readLoop} {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}
	wg.Wait()

	if err := a.session.Disconnect(); err != nil {
		logging.Warn("Error disconnecting", zap.Error(err))
	}
	logging.Info("Controller agent stopped")
	return nil
}

// sleep waits d or until ctx is done. It reports whether ctx is still live.
func (a *Agent) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-a.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Agent) connectionLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !a.session.IsConnected() {
			if err := a.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.Warn("Failed to connect to relay",
					zap.String("relay", a.session.Endpoint().String()),
					zap.Error(err),
				)
			}
		}
		if !a.sleep(ctx, a.opts.ReconnectBackoff) {
			return
		}
	}
}

// connect opens a fresh connection and identifies as the controller.
func (a *Agent) connect(ctx context.Context) error {
	if err := a.session.Connect(ctx, wsclient.NewBuffers(a.opts.BufferSize)); err != nil {
		return err
	}
	a.epoch.Add(1)

	if err := a.session.SendText([]byte(protocol.IdentController)); err != nil {
		_ = a.session.Disconnect()
		return err
	}
	logging.Info("Identified to relay as controller")
	return nil
}

func (a *Agent) keepAliveLoop(ctx context.Context) {
	msg := protocol.MustEncode(protocol.TypeKeepAlive, protocol.KeepAlivePayload{})
	for {
		if !a.sleep(ctx, a.opts.KeepAliveInterval) {
			return
		}
		if !a.session.IsConnected() {
			continue
		}
		if err := a.session.SendText(msg); err != nil {
			logging.Warn("Failed to send keepAlive", zap.Error(err))
		}
	}
}

func (a *Agent) readLoop(ctx context.Context) {
	var (
		acc   []byte
		epoch uint64
	)
	for {
		if ctx.Err() != nil {
			return
		}

		if !a.session.IsConnected() {
			acc = nil
			if !a.sleep(ctx, a.opts.IdlePoll) {
				return
			}
			continue
		}
		if current := a.epoch.Load(); current != epoch {
			epoch = current
			acc = nil
		}

		data, err := a.session.Receive(a.opts.ReadTimeout)
		switch {
		case err != nil && protocol.IsTimeout(err):
			if !a.sleep(ctx, a.opts.IdlePoll) {
				return
			}
		case err != nil:
			logging.Warn("Failed to read from relay", zap.Error(err))
			acc = nil
		case len(data) == 0:
			logging.Info("Relay closed the connection")
			_ = a.session.Disconnect()
			acc = nil
		default:
			acc = a.consume(append(acc, data...))
		}
	}
}

// consume handles every complete frame at the front of buf and returns the
// unconsumed remainder.
func (a *Agent) consume(buf []byte) []byte {
	for len(buf) > 0 {
		frame, n, err := protocol.DecodeFrame(buf)
		if err != nil {
			logging.Warn("Undecodable frame from relay, reconnecting", zap.Error(err))
			_ = a.session.Disconnect()
			return nil
		}
		if frame == nil {
			break
		}
		buf = buf[n:]

		if !a.handleFrame(frame) {
			return nil
		}
	}
	if len(buf) == 0 {
		return nil
	}
	return buf
}

// handleFrame reports false once the connection has been closed.
func (a *Agent) handleFrame(frame *protocol.Frame) bool {
	switch frame.Opcode {
	case protocol.OpcodeText:
		a.HandleMessage(frame.Payload)
	case protocol.OpcodeClose:
		logging.Info("Close frame received")
		_ = a.session.Disconnect()
		return false
	default:
		logging.Debug("Ignoring frame", zap.String("opcode", frame.OpcodeString()))
	}
	return true
}

// HandleMessage applies one text message from the relay.
func (a *Agent) HandleMessage(text []byte) {
	logging.LogMessage("received", "relay", text)

	if bytes.HasPrefix(text, []byte(protocol.UserParseErrorPrefix)) {
		logging.Warn("Relay reported a malformed user message",
			zap.ByteString("detail", bytes.TrimPrefix(text, []byte(protocol.UserParseErrorPrefix))),
		)
		return
	}

	msg, err := protocol.ParseServerMessage(text)
	if err != nil {
		logging.Warn("Error parsing relay message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case protocol.ToggleZonePayload:
		level := LevelFor(m.Activate)
		if err := a.driver.ToggleZone(m.Zone, level); err != nil {
			logging.Warn("Zone toggle failed",
				zap.Uint8("zone", m.Zone),
				zap.Stringer("level", level),
				zap.Error(err),
			)
			return
		}
		a.toggles.Add(1)
	case protocol.KeepAliveResponse:
		logging.Debug("keepAlive acknowledged")
	}
}
