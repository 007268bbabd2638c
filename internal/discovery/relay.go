package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/reeslabree/sprinkler-controller/internal/wsclient"
)

// Relay represents a sprinkler relay found on the local network
type Relay struct {
	// Instance is the advertised mDNS instance name
	Instance string

	// Hostname is the relay host's mDNS name (e.g., "garage-pi.local.")
	Hostname string

	// IP is the IPv4 (preferred) or IPv6 address of the relay
	IP string

	// Port is the WebSocket listen port
	Port int

	// Path is the HTTP path of the upgrade endpoint, from the "path" TXT record
	Path string

	// Metadata contains the remaining TXT records
	Metadata map[string]string

	// DiscoveredAt is when the relay was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable representation of the relay
func (r *Relay) String() string {
	return fmt.Sprintf("Sprinkler relay %s (%s) at %s", r.Instance, r.Hostname, r.Address())
}

// Address returns host:port for dialing.
func (r *Relay) Address() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}

// URL returns the ws:// URL of the relay
func (r *Relay) URL() string {
	return r.Endpoint().String()
}

// Endpoint converts the relay into a client endpoint.
func (r *Relay) Endpoint() wsclient.Endpoint {
	path := r.Path
	if path == "" {
		path = DefaultPath
	}
	return wsclient.Endpoint{Host: r.IP, Port: r.Port, Path: path}
}

// GetMetadata returns a metadata value by key
func (r *Relay) GetMetadata(key string) (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	val, ok := r.Metadata[key]
	return val, ok
}

// Version returns the relay's advertised software version, if any.
func (r *Relay) Version() string {
	v, _ := r.GetMetadata(txtVersion)
	return v
}
