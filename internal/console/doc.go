// Package console is the user side of the relay link.
//
// Client connects with gorilla/websocket, identifies as "user" and exposes
// one method per request type. Responses and controllerHeartbeat pushes
// arrive on Events; WaitFor picks out the next message of a given type for
// one-shot commands:
//
//	client.Status()
//	resp, err := console.WaitFor[protocol.StatusResponse](ctx, client.Events())
//
// Model is a bubbletea dashboard listing the six zones and the relay's
// schedules. Space toggles the selected zone; the zone is shown as on only
// after the relay confirms the toggle was delivered.
//
// The relay keeps a single user connection. Opening a console disconnects
// any other console or dashboard.
package console
