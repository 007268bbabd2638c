// Package wsclient is the controller's connection to the relay: one TCP
// stream upgraded to WebSocket by hand, carrying small text frames.
//
// A Session moves through three states:
//
//	Disconnected --Connect--> Connecting --handshake ok--> Connected
//	Connected --Disconnect / read or write failure--> Disconnected
//
// Connect never retries; reconnection policy belongs to the caller. Each
// attempt is given its own Buffers so no memory is reused between
// connections.
package wsclient
