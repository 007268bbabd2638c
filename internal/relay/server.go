package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/logging"
)

const (
	// DefaultPort is the TCP port the relay listens on
	DefaultPort = 9001

	// Time allowed for a new connection to identify itself
	identWait = 10 * time.Second

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed for connections to drain on shutdown
	shutdownWait = 10 * time.Second
)

// Config holds the relay server configuration
type Config struct {
	Host string
	Port int
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Server accepts WebSocket connections, identifies each one as user or
// controller and connects it to the hub.
type Server struct {
	config   Config
	hub      *Hub
	router   *Router
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
}

// NewServer creates a relay server.
func NewServer(cfg Config, hub *Hub, router *Router) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	s := &Server{
		config: cfg,
		hub:    hub,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Controllers and the console do not send an Origin header;
			// browser dashboards on the LAN do.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		activeConns: make(map[string]*websocket.Conn),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: identWait,
	}
	return s
}

// Handler returns the HTTP handler serving WebSocket upgrades on any path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// Start listens on the configured address and blocks until SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.ListenAndServe(ctx)
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done. The heartbeat
// emitter runs for the lifetime of the call.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener

	logging.Info("Relay listening for connections",
		zap.String("addr", listener.Addr().String()),
	)

	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go s.hub.RunHeartbeat(hbCtx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping relay...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	connID := uuid.NewString()
	remoteAddr := conn.RemoteAddr().String()

	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	s.activeConns[connID] = conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, connID)
		s.mu.Unlock()
		logging.LogConnection(connID, remoteAddr, "connection_closed")
	}()

	logging.LogConnection(connID, remoteAddr, "connection_accepted")

	role, ok := s.identify(conn, connID)
	if !ok {
		return
	}

	outbox := NewOutbox()
	s.hub.Register(role, outbox)
	defer s.hub.Unregister(role, outbox)

	logging.Info("Client identified",
		zap.String("conn_id", connID),
		zap.Stringer("role", role),
	)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, connID, outbox)
	}()

	s.readLoop(conn, connID, role)

	outbox.Close()
	<-writerDone
}

// identify reads the first message. Anything other than the exact text
// "user" or "controller" closes the connection without a reply.
func (s *Server) identify(conn *websocket.Conn, connID string) (Role, bool) {
	if err := conn.SetReadDeadline(time.Now().Add(identWait)); err != nil {
		return 0, false
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		logging.Debug("No identification received",
			zap.String("conn_id", connID),
			zap.Error(err),
		)
		return 0, false
	}

	role, ok := ParseRole(string(data))
	if msgType != websocket.TextMessage || !ok {
		logging.Debug("Unknown client identification",
			zap.String("conn_id", connID),
			zap.String("ident", string(data)),
		)
		return 0, false
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return 0, false
	}
	return role, true
}

func (s *Server) readLoop(conn *websocket.Conn, connID string, role Role) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed or error reading message",
					zap.String("conn_id", connID),
					zap.Stringer("role", role),
					zap.Error(err),
				)
			}
			return
		}

		if msgType != websocket.TextMessage {
			logging.Debug("Ignoring non-text message",
				zap.String("conn_id", connID),
				zap.Int("message_type", msgType),
			)
			continue
		}

		s.router.Route(role, data)
	}
}

// writeLoop drains outbox to the socket. When the outbox is closed (the
// connection was evicted or is ending) the socket is closed, which also
// ends the read loop.
func (s *Server) writeLoop(conn *websocket.Conn, connID string, outbox *Outbox) {
	defer conn.Close()

	for {
		msg, ok := outbox.Next()
		if !ok {
			return
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logging.Info("Failed to write message",
				zap.String("conn_id", connID),
				zap.Error(err),
			)
			return
		}
	}
}

// Shutdown stops accepting connections, closes every active connection and
// waits for handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down relay...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Error("Error closing listener", zap.Error(err))
	}

	s.mu.Lock()
	for id, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("conn_id", id))
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.hub.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of open connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
