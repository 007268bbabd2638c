// Package protocol implements the wire formats shared by the sprinkler relay,
// the controller device and the user console.
//
// Three layers live here:
//   - the minimal WebSocket framing used by the controller (frame.go)
//   - the client side of the HTTP upgrade handshake (handshake.go)
//   - the JSON application messages exchanged through the relay (messages.go)
//
// # WebSocket Frame Format
//
// Only the subset needed by the controller is supported. Outbound frames are
// always single, final, masked text frames:
//   - FIN bit: 1, opcode 0x1 (text)
//   - Mask bit: 1, payload length in the low 7 bits (max 125)
//   - Mask key: 4 bytes, fresh for every frame
//   - Payload: XOR of each byte with key[i%4]
//
// Payloads longer than 125 bytes are rejected with ErrTypeFrameCreationFailed;
// extended lengths are never encoded. Inbound decoding accepts 7-bit and
// 16-bit lengths, masked or not, and nothing fragmented.
//
// # Handshake
//
// The controller sends a GET with Upgrade/Connection/Sec-WebSocket-Key/
// Sec-WebSocket-Version headers and then waits (default 20s) for a response
// containing "Sec-WebSocket-Accept", compared case-insensitively. The outcome
// is split so callers can tell a silent relay from a refusing one:
//   - nothing received: ErrTypeHandshakeTimeout
//   - something received, no accept header: ErrTypeHandshakeFailed
//   - connection closed: ErrTypeConnectionClosed
//
// # Application Messages
//
// After connecting, a client identifies itself with the bare text "user" or
// "controller". Every later message is a JSON envelope:
//
//	{"type": "toggleZone", "payload": {"zone": 0, "activate": true}}
//
// User requests: toggleZone, status, keepAlive, setSchedule, getConfig.
// Each gets a matching "<type>Response". The relay also pushes
// controllerHeartbeat to the user every few seconds. The controller sends
// keepAlive and receives toggleZone and keepAliveResponse.
//
// # Usage Example
//
//	frame, err := protocol.EncodeTextFrame(
//	    protocol.MustEncode(protocol.TypeKeepAlive, protocol.KeepAlivePayload{}),
//	    maskKey,
//	)
//	if err != nil {
//	    return err
//	}
//
//	msg, err := protocol.ParseServerMessage(payload)
//	switch m := msg.(type) {
//	case protocol.ToggleZonePayload:
//	    driver.ToggleZone(m.Zone, controller.LevelFor(m.Activate))
//	}
//
// # Errors
//
// Every failure is an *Error carrying an ErrorType. Use IsType and IsTimeout
// to inspect them through wrapping.
package protocol
