package wsclient

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

const (
	// DefaultBufferSize is the read buffer allocated per connection attempt
	DefaultBufferSize = 4096

	// DefaultWriteTimeout bounds a single frame write
	DefaultWriteTimeout = 10 * time.Second
)

// State is the lifecycle state of a Session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Endpoint is the relay address a Session connects to.
type Endpoint struct {
	Host string
	Port int
	Path string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the ws:// URL of the endpoint
func (e Endpoint) String() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return "ws://" + e.Address() + path
}

// Dialer opens the underlying byte stream. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Buffers is the memory owned by one connection attempt. A fresh value is
// passed to every Connect so nothing is shared across reconnects.
type Buffers struct {
	read []byte
}

// NewBuffers allocates buffers with a read buffer of size bytes.
func NewBuffers(size int) *Buffers {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffers{read: make([]byte, size)}
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Dialer           Dialer
	Random           io.Reader
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Session is a single client WebSocket connection to the relay.
//
// Every operation takes the session lock for its whole duration, so frame
// writes never interleave and a read never races a disconnect.
type Session struct {
	endpoint         Endpoint
	dialer           Dialer
	random           io.Reader
	handshakeTimeout time.Duration
	writeTimeout     time.Duration

	mu      sync.Mutex
	state   State
	conn    net.Conn
	buffers *Buffers
	pending []byte
}

// New creates a disconnected session for endpoint.
func New(endpoint Endpoint, opts Options) *Session {
	s := &Session{
		endpoint:         endpoint,
		dialer:           opts.Dialer,
		random:           opts.Random,
		handshakeTimeout: opts.HandshakeTimeout,
		writeTimeout:     opts.WriteTimeout,
	}
	if s.dialer == nil {
		s.dialer = &net.Dialer{Timeout: protocol.DefaultHandshakeTimeout}
	}
	if s.random == nil {
		s.random = rand.Reader
	}
	if s.handshakeTimeout <= 0 {
		s.handshakeTimeout = protocol.DefaultHandshakeTimeout
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = DefaultWriteTimeout
	}
	return s
}

// Endpoint returns the configured relay endpoint.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is Connected.
func (s *Session) IsConnected() bool {
	return s.State() == Connected
}

// Connect dials the relay and performs the upgrade handshake. On any failure
// the session is left Disconnected and the typed error is returned; no retry
// is attempted. Connecting an already connected session is a no-op.
func (s *Session) Connect(ctx context.Context, buffers *Buffers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Connected {
		return nil
	}
	if buffers == nil {
		buffers = NewBuffers(DefaultBufferSize)
	}

	s.state = Connecting
	addr := s.endpoint.Address()

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.state = Disconnected
		return protocol.NewError(protocol.ErrTypeConnectionFailed, "failed to connect to "+addr, err)
	}

	leftover, err := s.handshake(ctx, conn)
	if err != nil {
		conn.Close()
		s.state = Disconnected
		return err
	}

	s.conn = conn
	s.buffers = buffers
	s.pending = leftover
	s.state = Connected

	logging.Info("Connected to relay",
		zap.String("endpoint", s.endpoint.String()),
		zap.String("local_addr", conn.LocalAddr().String()),
	)
	return nil
}

func (s *Session) handshake(ctx context.Context, conn net.Conn) ([]byte, error) {
	// Abort a blocked handshake when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	key, err := protocol.GenerateKey(s.random)
	if err != nil {
		return nil, err
	}

	request := protocol.BuildUpgradeRequest(s.endpoint.Host, s.endpoint.Port, s.endpoint.Path, key)
	logging.LogRawBytes("Upgrade request", []byte(request))

	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return nil, protocol.NewError(protocol.ErrTypeSendFailed, "failed to set write deadline", err)
	}
	if _, err := io.WriteString(conn, request); err != nil {
		return nil, protocol.NewError(protocol.ErrTypeSendFailed, "failed to send upgrade request", err)
	}

	return protocol.AwaitHandshakeResponse(conn, s.handshakeTimeout)
}

// SendText sends payload as one masked text frame with a fresh masking key.
func (s *Session) SendText(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return protocol.NewError(protocol.ErrTypeConnectionClosed, "session is not connected", nil)
	}

	var maskKey [4]byte
	if _, err := io.ReadFull(s.random, maskKey[:]); err != nil {
		return protocol.NewError(protocol.ErrTypeKeyGenerationFailed, "failed to generate masking key", err)
	}

	frame, err := protocol.EncodeTextFrame(payload, maskKey)
	if err != nil {
		return err
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		s.teardownLocked()
		return protocol.NewError(protocol.ErrTypeSendFailed, "failed to set write deadline", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		s.teardownLocked()
		return protocol.NewError(protocol.ErrTypeSendFailed, "failed to write frame", err)
	}

	logging.LogMessage("sent", "relay", payload)
	return nil
}

// Receive reads whatever bytes are available, waiting at most timeout
// (zero waits indefinitely). Bytes received together with the handshake
// response are returned first.
//
// An empty result with a nil error means the relay closed the connection;
// the caller must Disconnect. A timeout returns an error for which
// protocol.IsTimeout is true and leaves the session connected.
func (s *Session) Receive(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return nil, protocol.NewError(protocol.ErrTypeConnectionClosed, "session is not connected", nil)
	}

	if len(s.pending) > 0 {
		data := s.pending
		s.pending = nil
		return data, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		s.teardownLocked()
		return nil, protocol.NewError(protocol.ErrTypeReadError, "failed to set read deadline", err)
	}

	n, err := s.conn.Read(s.buffers.read)
	if n > 0 {
		data := make([]byte, n)
		copy(data, s.buffers.read[:n])
		return data, nil
	}

	switch {
	case err == nil:
		return []byte{}, nil
	case errors.Is(err, io.EOF):
		return []byte{}, nil
	case isTimeout(err):
		return nil, protocol.NewTimeoutError("read timed out", err)
	default:
		s.teardownLocked()
		return nil, protocol.NewError(protocol.ErrTypeReadError, "failed to read from relay", err)
	}
}

// Disconnect closes the stream and returns to Disconnected. It is safe to
// call repeatedly.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.state = Disconnected
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.teardownLocked()
	logging.Info("Disconnected from relay", zap.String("endpoint", s.endpoint.String()))
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return protocol.NewError(protocol.ErrTypeConnectionClosed, "error closing connection", err)
	}
	return nil
}

// teardownLocked drops the connection and its buffers. s.mu must be held.
func (s *Session) teardownLocked() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.buffers = nil
	s.pending = nil
	s.state = Disconnected
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
