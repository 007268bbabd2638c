// Package controller is the device side of the relay link.
//
// An Agent owns one wsclient.Session and three loops:
//
//   - connection: when disconnected, connect with fresh buffers and send the
//     identification "controller"; on failure retry after 5s
//   - keep-alive: send keepAlive every 2.5s while connected
//   - read: poll the session with a 100ms timeout, reassemble frames and
//     apply toggleZone commands through a ZoneDriver
//
// A close frame or end of stream disconnects the session; the connection
// loop then reconnects.
//
// ZoneBank is the in-memory ZoneDriver used when no valve hardware is
// attached. Zone indexes start at 0 and must be below the bank size.
package controller
