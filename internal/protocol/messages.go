package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/reeslabree/sprinkler-controller/internal/config"
)

// Identification strings sent as the first message on a relay connection.
const (
	IdentUser       = "user"
	IdentController = "controller"
)

// Message type discriminators carried in the envelope's "type" field.
const (
	TypeToggleZone          = "toggleZone"
	TypeToggleZoneResponse  = "toggleZoneResponse"
	TypeStatus              = "status"
	TypeStatusResponse      = "statusResponse"
	TypeKeepAlive           = "keepAlive"
	TypeKeepAliveResponse   = "keepAliveResponse"
	TypeSetSchedule         = "setSchedule"
	TypeSetScheduleResponse = "setScheduleResponse"
	TypeGetConfig           = "getConfig"
	TypeGetConfigResponse   = "getConfigResponse"
	TypeControllerHeartbeat = "controllerHeartbeat"
)

// UserParseErrorPrefix prefixes the diagnostic text forwarded to the
// controller when a user message cannot be parsed.
const UserParseErrorPrefix = "Error parsing user message: "

// Envelope is the tag/content JSON wrapper used by every application message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ToggleZonePayload switches one zone on or off. Zone is the numeric index.
type ToggleZonePayload struct {
	Zone     uint8 `json:"zone"`
	Activate bool  `json:"activate"`
}

// ToggleZoneResponse acknowledges a user toggle request.
type ToggleZoneResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StatusPayload requests the controller connection state.
type StatusPayload struct{}

// StatusResponse reports whether the controller is within its liveness window.
type StatusResponse struct {
	IsControllerConnected bool `json:"isControllerConnected"`
}

// KeepAlivePayload is sent periodically by both roles.
type KeepAlivePayload struct{}

// KeepAliveResponse acknowledges a keep-alive.
type KeepAliveResponse struct{}

// SetSchedulePayload replaces the whole schedule list. The stagger flags are
// left unchanged when omitted.
type SetSchedulePayload struct {
	Schedules    []config.Schedule `json:"schedules"`
	StaggerOn    *bool             `json:"staggerOn,omitempty"`
	StaggerZones *bool             `json:"staggerZones,omitempty"`
}

// SetScheduleResponse acknowledges a schedule replacement.
type SetScheduleResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GetConfigPayload requests the current configuration.
type GetConfigPayload struct{}

// GetConfigResponse carries the current configuration.
type GetConfigResponse struct {
	Schedules    []config.Schedule `json:"schedules"`
	StaggerOn    bool              `json:"staggerOn"`
	StaggerZones bool              `json:"staggerZones"`
}

// ControllerHeartbeat is pushed to the user on every heartbeat tick.
type ControllerHeartbeat struct {
	IsControllerConnected bool `json:"isControllerConnected"`
}

// Encode wraps payload in an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: body})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(msgType string, payload any) []byte {
	data, err := Encode(msgType, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeEnvelope parses the outer wrapper without interpreting the payload.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewError(ErrTypePayloadParse, "invalid message envelope", err)
	}
	if env.Type == "" {
		return nil, NewError(ErrTypePayloadParse, "missing message type", nil)
	}
	return &env, nil
}

// ParseUserMessage decodes a message sent by the user role. The result is
// one of ToggleZonePayload, StatusPayload, KeepAlivePayload,
// SetSchedulePayload or GetConfigPayload.
func ParseUserMessage(data []byte) (any, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeToggleZone:
		return decodeToggleZone(env.Payload)
	case TypeStatus:
		return StatusPayload{}, nil
	case TypeKeepAlive:
		return KeepAlivePayload{}, nil
	case TypeSetSchedule:
		var p SetSchedulePayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Schedules == nil {
			return nil, NewError(ErrTypePayloadParse, "setSchedule: missing field schedules", nil)
		}
		return p, nil
	case TypeGetConfig:
		return GetConfigPayload{}, nil
	default:
		return nil, unknownVariant(env.Type)
	}
}

// ParseControllerMessage decodes a message sent by the controller role to
// the relay. Only KeepAlivePayload is defined.
func ParseControllerMessage(data []byte) (any, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeKeepAlive:
		return KeepAlivePayload{}, nil
	default:
		return nil, unknownVariant(env.Type)
	}
}

// ParseServerMessage decodes a message the relay sends to the controller:
// ToggleZonePayload or KeepAliveResponse.
func ParseServerMessage(data []byte) (any, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeToggleZone:
		return decodeToggleZone(env.Payload)
	case TypeKeepAliveResponse:
		return KeepAliveResponse{}, nil
	default:
		return nil, unknownVariant(env.Type)
	}
}

// ParseUserResponse decodes a message the relay sends to the user.
func ParseUserResponse(data []byte) (any, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeToggleZoneResponse:
		var p ToggleZoneResponse
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeStatusResponse:
		var p StatusResponse
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeKeepAliveResponse:
		return KeepAliveResponse{}, nil
	case TypeSetScheduleResponse:
		var p SetScheduleResponse
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeGetConfigResponse:
		var p GetConfigResponse
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeControllerHeartbeat:
		var p ControllerHeartbeat
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, unknownVariant(env.Type)
	}
}

func decodeToggleZone(raw json.RawMessage) (ToggleZonePayload, error) {
	var wire struct {
		Zone     *uint8 `json:"zone"`
		Activate *bool  `json:"activate"`
	}
	if err := decodeRaw(TypeToggleZone, raw, &wire); err != nil {
		return ToggleZonePayload{}, err
	}
	if wire.Zone == nil {
		return ToggleZonePayload{}, NewError(ErrTypePayloadParse, "toggleZone: missing field zone", nil)
	}
	if wire.Activate == nil {
		return ToggleZonePayload{}, NewError(ErrTypePayloadParse, "toggleZone: missing field activate", nil)
	}
	return ToggleZonePayload{Zone: *wire.Zone, Activate: *wire.Activate}, nil
}

func decodePayload(env *Envelope, v any) error {
	return decodeRaw(env.Type, env.Payload, v)
}

func decodeRaw(msgType string, raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return NewError(ErrTypePayloadParse, msgType+": missing payload", nil)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewError(ErrTypePayloadParse, msgType+": invalid payload", err)
	}
	return nil
}

func unknownVariant(msgType string) error {
	return NewError(ErrTypePayloadParse, fmt.Sprintf("unknown message type %q", msgType), nil)
}
