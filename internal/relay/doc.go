// Package relay implements the message hub between the controller device and
// user clients.
//
// # Connection Flow
//
//  1. Client opens a WebSocket connection (plain TCP, default port 9001)
//  2. Client sends the text "user" or "controller" as its first message;
//     anything else closes the connection without a reply
//  3. The connection's Outbox is registered with the Hub, evicting any
//     earlier connection of the same role
//  4. Text messages are handed to the Router until either side closes
//
// # Hub
//
// The Hub keeps at most one Outbox per role. Sends to a role with no
// connection, or to an evicted outbox, are dropped silently. Every message
// from the controller refreshes a timestamp; the controller counts as
// connected for 15s after it. A heartbeat task pushes controllerHeartbeat to
// the user every 5s.
//
// # Router
//
// User messages:
//   - toggleZone: forwarded to the controller; the response reports whether
//     it was delivered
//   - status: controller liveness
//   - keepAlive: acknowledged
//   - setSchedule: persisted, then handed to the schedule engine
//   - getConfig: current schedules and stagger flags
//
// A user message that fails to parse is reported to the controller as
// "Error parsing user message: <reason>". Controller keepAlive messages are
// acknowledged with keepAliveResponse.
//
// # Thread Safety
//
// Hub, Outbox and Router are safe for concurrent use. Each connection has one
// reader and one writer goroutine.
package relay
