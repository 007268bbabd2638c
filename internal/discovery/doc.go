// Package discovery finds and advertises sprinkler relays over mDNS.
//
// A relay started with --advertise registers itself as a "_sprinkler._tcp"
// service in the "local." domain. Its TXT records carry the upgrade path
// ("path=/") and the relay version ("version=..."). Controllers and consoles
// that are not given an explicit address browse for that service type and
// connect to the first relay that answers.
//
// # Usage Example
//
//	relay, err := discovery.FindRelay(ctx, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	session := wsclient.New(relay.Endpoint(), wsclient.Options{})
//
// # Network Requirements
//
// Multicast must be allowed on UDP port 5353. Relays on another subnet are
// not visible; pass --relay-host instead.
package discovery
