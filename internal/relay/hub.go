package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

const (
	// LivenessWindow is how long after its last message the controller is
	// still reported as connected.
	LivenessWindow = 15 * time.Second

	// HeartbeatInterval is the period of controllerHeartbeat pushes.
	HeartbeatInterval = 5 * time.Second
)

// Role is the kind of peer on a relay connection.
type Role int

const (
	RoleUser Role = iota
	RoleController
)

// String returns the display name of the role
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleController:
		return "Controller"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps an identification message to a role. Only the exact
// strings "user" and "controller" are accepted.
func ParseRole(ident string) (Role, bool) {
	switch ident {
	case protocol.IdentUser:
		return RoleUser, true
	case protocol.IdentController:
		return RoleController, true
	default:
		return 0, false
	}
}

// Hub holds at most one outbox per role and tracks controller liveness.
// The registry and the liveness timestamp have separate locks.
type Hub struct {
	clock clockwork.Clock

	mu      sync.Mutex
	clients map[Role]*Outbox

	seenMu         sync.Mutex
	controllerSeen time.Time
	seen           bool
}

// NewHub creates an empty hub. A nil clock selects the real clock.
func NewHub(clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		clock:   clock,
		clients: make(map[Role]*Outbox),
	}
}

// Register installs outbox for role. An outbox already registered for the
// role is evicted and closed, so its connection is torn down and any later
// send through it fails.
func (h *Hub) Register(role Role, outbox *Outbox) {
	h.mu.Lock()
	old := h.clients[role]
	h.clients[role] = outbox
	h.mu.Unlock()

	if old != nil && old != outbox {
		old.Close()
		logging.Info("Evicted previous connection", zap.Stringer("role", role))
	}
	logging.Info("Client registered", zap.Stringer("role", role))
}

// Unregister removes outbox if it is still the one registered for role.
// A connection that was evicted therefore never removes its replacement.
func (h *Hub) Unregister(role Role, outbox *Outbox) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[role] != outbox {
		return false
	}
	delete(h.clients, role)
	logging.Info("Client unregistered", zap.Stringer("role", role))
	return true
}

// IsRegistered reports whether role currently has a connection.
func (h *Hub) IsRegistered(role Role) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[role]
	return ok
}

// Send queues msg for role. It returns false, without error, if no client
// is registered or its outbox is closed.
func (h *Hub) Send(role Role, msg []byte) bool {
	h.mu.Lock()
	outbox := h.clients[role]
	h.mu.Unlock()

	if outbox == nil {
		return false
	}
	if !outbox.Send(msg) {
		return false
	}
	logging.LogMessage("sent", role.String(), msg)
	return true
}

// TouchController records that a message just arrived from the controller.
func (h *Hub) TouchController() {
	now := h.clock.Now()
	h.seenMu.Lock()
	h.controllerSeen = now
	h.seen = true
	h.seenMu.Unlock()
}

// ControllerConnected reports whether the controller has sent anything
// within LivenessWindow.
func (h *Hub) ControllerConnected() bool {
	h.seenMu.Lock()
	seen, at := h.seen, h.controllerSeen
	h.seenMu.Unlock()

	if !seen {
		return false
	}
	return h.clock.Since(at) < LivenessWindow
}

// ToggleZone sends a toggleZone command to the controller. It reports
// whether the command was queued for a connected controller.
func (h *Hub) ToggleZone(zone config.Zone, activate bool) bool {
	msg, err := protocol.Encode(protocol.TypeToggleZone, protocol.ToggleZonePayload{
		Zone:     zone.Index(),
		Activate: activate,
	})
	if err != nil {
		logging.Error("Failed to encode toggleZone", zap.Error(err))
		return false
	}
	return h.Send(RoleController, msg)
}

// BroadcastHeartbeat pushes the controller liveness to the user. It is a
// no-op when no user is connected.
func (h *Hub) BroadcastHeartbeat() bool {
	connected := h.ControllerConnected()
	msg := protocol.MustEncode(protocol.TypeControllerHeartbeat, protocol.ControllerHeartbeat{
		IsControllerConnected: connected,
	})
	return h.Send(RoleUser, msg)
}

// RunHeartbeat calls BroadcastHeartbeat every HeartbeatInterval until ctx
// is done.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := h.clock.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			h.BroadcastHeartbeat()
		}
	}
}

// Close closes every registered outbox.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for role, outbox := range h.clients {
		outbox.Close()
		delete(h.clients, role)
	}
}
