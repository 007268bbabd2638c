package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

const (
	writeWait = 10 * time.Second

	// eventBuffer bounds decoded messages waiting for a reader
	eventBuffer = 32
)

// ErrClosed is returned by requests on a closed client.
var ErrClosed = errors.New("console client closed")

// Event is one message received from the relay. Message holds the decoded
// response (protocol.StatusResponse, protocol.ControllerHeartbeat, ...) or
// is nil when Err is set.
type Event struct {
	Message any
	Raw     []byte
	Err     error
}

// URL builds the ws:// URL of a relay.
func URL(host string, port int, path string) string {
	if path == "" {
		path = "/"
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// Client is a user-role connection to the relay. The relay keeps one user
// connection, so opening a Client replaces any other console or dashboard.
type Client struct {
	url  string
	conn *websocket.Conn

	writeMu sync.Mutex

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at url and identifies as the user.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: protocol.DefaultHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay at %s: %w", url, err)
	}

	c := &Client{
		url:    url,
		conn:   conn,
		events: make(chan Event, eventBuffer),
		closed: make(chan struct{}),
	}

	if err := c.write([]byte(protocol.IdentUser)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to identify to relay: %w", err)
	}

	logging.Info("Connected to relay as user", zap.String("url", url))
	go c.readLoop()
	return c, nil
}

// URL returns the relay URL the client is connected to.
func (c *Client) URL() string {
	return c.url
}

// Events returns decoded relay messages. The channel is closed when the
// connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// ToggleZone asks the relay to switch zone on or off.
func (c *Client) ToggleZone(zone config.Zone, activate bool) error {
	return c.send(protocol.TypeToggleZone, protocol.ToggleZonePayload{
		Zone:     zone.Index(),
		Activate: activate,
	})
}

// Status asks whether the controller is connected.
func (c *Client) Status() error {
	return c.send(protocol.TypeStatus, protocol.StatusPayload{})
}

// KeepAlive pings the relay.
func (c *Client) KeepAlive() error {
	return c.send(protocol.TypeKeepAlive, protocol.KeepAlivePayload{})
}

// GetConfig requests the current schedules and stagger flags.
func (c *Client) GetConfig() error {
	return c.send(protocol.TypeGetConfig, protocol.GetConfigPayload{})
}

// SetSchedules replaces the relay's schedules. Nil stagger flags keep the
// relay's current values.
func (c *Client) SetSchedules(schedules []config.Schedule, staggerOn, staggerZones *bool) error {
	if schedules == nil {
		schedules = []config.Schedule{}
	}
	return c.send(protocol.TypeSetSchedule, protocol.SetSchedulePayload{
		Schedules:    schedules,
		StaggerOn:    staggerOn,
		StaggerZones: staggerZones,
	})
}

func (c *Client) send(msgType string, payload any) error {
	msg, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	return c.write(msg)
}

func (c *Client) write(msg []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	logging.LogMessage("sent", "relay", msg)
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.emit(Event{Err: fmt.Errorf("connection to relay lost: %w", err)})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		logging.LogMessage("received", "relay", data)
		msg, err := protocol.ParseUserResponse(data)
		c.emit(Event{Message: msg, Raw: data, Err: err})
	}
}

// emit delivers ev unless the client is closing.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// WaitFor returns the next message of type T, skipping everything else
// (heartbeats in particular). Decode errors are skipped too.
func WaitFor[T any](ctx context.Context, events <-chan Event) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return zero, ErrClosed
			}
			if ev.Err != nil {
				if ev.Message == nil && ev.Raw == nil {
					return zero, ev.Err
				}
				logging.Debug("Skipping undecodable message", zap.Error(ev.Err))
				continue
			}
			if msg, ok := ev.Message.(T); ok {
				return msg, nil
			}
		}
	}
}
