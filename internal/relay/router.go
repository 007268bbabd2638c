package relay

import (
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

// errControllerNotConnected is reported when a toggle cannot be delivered.
const errControllerNotConnected = "controller not connected"

// Scheduler receives each new configuration generation.
// *schedule.Engine implements it.
type Scheduler interface {
	Update(cfg config.Config)
}

// Router parses inbound messages and dispatches them by role.
type Router struct {
	hub       *Hub
	config    *config.Handle
	scheduler Scheduler
}

// NewRouter creates a router. scheduler may be nil when no schedule engine
// is running.
func NewRouter(hub *Hub, cfg *config.Handle, scheduler Scheduler) *Router {
	return &Router{hub: hub, config: cfg, scheduler: scheduler}
}

// Route handles one text message received from a connection of role from.
// Parse failures are logged and never end the connection.
func (r *Router) Route(from Role, text []byte) {
	logging.LogMessage("received", from.String(), text)

	switch from {
	case RoleUser:
		r.routeUser(text)
	case RoleController:
		r.routeController(text)
	}
}

func (r *Router) routeUser(text []byte) {
	msg, err := protocol.ParseUserMessage(text)
	if err != nil {
		logging.Warn("Error parsing user message", zap.Error(err))
		r.hub.Send(RoleController, []byte(protocol.UserParseErrorPrefix+err.Error()))
		return
	}

	switch m := msg.(type) {
	case protocol.ToggleZonePayload:
		r.reply(protocol.TypeToggleZoneResponse, r.toggleZone(m))

	case protocol.StatusPayload:
		r.reply(protocol.TypeStatusResponse, protocol.StatusResponse{
			IsControllerConnected: r.hub.ControllerConnected(),
		})

	case protocol.KeepAlivePayload:
		r.reply(protocol.TypeKeepAliveResponse, protocol.KeepAliveResponse{})

	case protocol.SetSchedulePayload:
		r.reply(protocol.TypeSetScheduleResponse, r.setSchedule(m))

	case protocol.GetConfigPayload:
		cfg := r.config.Get()
		r.reply(protocol.TypeGetConfigResponse, protocol.GetConfigResponse{
			Schedules:    cfg.Schedules,
			StaggerOn:    cfg.StaggerOn,
			StaggerZones: cfg.StaggerZones,
		})
	}
}

func (r *Router) toggleZone(m protocol.ToggleZonePayload) protocol.ToggleZoneResponse {
	zone, err := config.ZoneFromIndex(m.Zone)
	if err != nil {
		zoneErr := protocol.NewError(protocol.ErrTypeZoneOutOfRange, err.Error(), nil)
		logging.Warn("Rejected toggleZone", zap.Error(zoneErr))
		return protocol.ToggleZoneResponse{Success: false, Error: zoneErr.Error()}
	}

	if !r.hub.ToggleZone(zone, m.Activate) {
		return protocol.ToggleZoneResponse{Success: false, Error: errControllerNotConnected}
	}

	logging.Info("Zone toggled by user",
		zap.Stringer("zone", zone),
		zap.Bool("activate", m.Activate),
	)
	return protocol.ToggleZoneResponse{Success: true}
}

func (r *Router) setSchedule(m protocol.SetSchedulePayload) protocol.SetScheduleResponse {
	next, err := r.config.Apply(func(c *config.Config) {
		c.Schedules = m.Schedules
		if m.StaggerOn != nil {
			c.StaggerOn = *m.StaggerOn
		}
		if m.StaggerZones != nil {
			c.StaggerZones = *m.StaggerZones
		}
	})
	if err != nil {
		logging.Warn("Rejected setSchedule", zap.Error(err))
		return protocol.SetScheduleResponse{Success: false, Error: err.Error()}
	}

	if r.scheduler != nil {
		r.scheduler.Update(next)
	}

	logging.Info("Schedules replaced",
		zap.Int("schedules", len(next.Schedules)),
		zap.Bool("stagger", next.Stagger()),
	)
	return protocol.SetScheduleResponse{Success: true}
}

func (r *Router) routeController(text []byte) {
	r.hub.TouchController()

	msg, err := protocol.ParseControllerMessage(text)
	if err != nil {
		logging.Warn("Error parsing controller message", zap.Error(err))
		return
	}

	switch msg.(type) {
	case protocol.KeepAlivePayload:
		r.hub.Send(RoleController, protocol.MustEncode(protocol.TypeKeepAliveResponse, protocol.KeepAliveResponse{}))
	}
}

func (r *Router) reply(msgType string, payload any) {
	msg, err := protocol.Encode(msgType, payload)
	if err != nil {
		logging.Error("Failed to encode response", zap.String("type", msgType), zap.Error(err))
		return
	}
	if !r.hub.Send(RoleUser, msg) {
		logging.Debug("Response dropped, no user connected", zap.String("type", msgType))
	}
}
