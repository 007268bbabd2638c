package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/reeslabree/sprinkler-controller/internal/logging"
	"github.com/reeslabree/sprinkler-controller/internal/version"
)

const (
	// ServiceType is the mDNS service type relays advertise
	ServiceType = "_sprinkler._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for relay discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is assumed when an entry carries no port
	DefaultPort = 9001

	// DefaultPath is assumed when an entry carries no "path" TXT record
	DefaultPath = "/"

	txtPath    = "path"
	txtVersion = "version"
)

// Scanner handles mDNS relay discovery
type Scanner struct {
	// Timeout is the maximum time to wait for relays
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForRelays collects every relay that answers within the timeout.
func (s *Scanner) ScanForRelays(ctx context.Context) ([]*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)

	var mu sync.Mutex
	relays := make([]*Relay, 0)
	seen := make(map[string]bool)

	go func() {
		for entry := range entries {
			relay := s.parseServiceEntry(entry)
			if relay == nil {
				continue
			}
			mu.Lock()
			if !seen[relay.Address()] {
				seen[relay.Address()] = true
				relays = append(relays, relay)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Relay(nil), relays...), nil
}

// WaitForRelay returns the first relay that answers. A non-empty instance
// restricts the match to that instance name.
func (s *Scanner) WaitForRelay(ctx context.Context, instance string) (*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Relay, 1)

	go func() {
		for entry := range entries {
			relay := s.parseServiceEntry(entry)
			if relay == nil || (instance != "" && relay.Instance != instance) {
				continue
			}
			select {
			case found <- relay:
			default:
			}
			cancel()
			return
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case relay := <-found:
		return relay, nil
	case <-ctx.Done():
		select {
		case relay := <-found:
			return relay, nil
		default:
		}
		if instance != "" {
			return nil, fmt.Errorf("relay %q not found within %v", instance, s.Timeout)
		}
		return nil, fmt.Errorf("no relay found within %v", s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Relay.
// Returns nil if the entry has no usable address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Relay {
	if entry == nil {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := parseTXT(entry.Text)
	path := metadata[txtPath]
	if path == "" {
		path = DefaultPath
	}

	return &Relay{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Path:         path,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" records. A record without "=" maps to "".
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		key, value, _ := strings.Cut(txt, "=")
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return metadata
}

// Advertisement is a running mDNS registration of a relay.
type Advertisement struct {
	server *zeroconf.Server
	once   sync.Once
}

// Shutdown withdraws the advertisement. It is idempotent.
func (a *Advertisement) Shutdown() {
	a.once.Do(a.server.Shutdown)
}

// DefaultInstance returns "sprinkler-relay-<hostname>".
func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "sprinkler-relay"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return "sprinkler-relay-" + host
}

// advertisedTXT returns the TXT records published for a relay.
func advertisedTXT(path string) []string {
	if path == "" {
		path = DefaultPath
	}
	return []string{
		txtPath + "=" + path,
		txtVersion + "=" + version.Version,
	}
}

// Advertise publishes a relay listening on port under ServiceType. An empty
// instance selects DefaultInstance.
func Advertise(instance string, port int, path string) (*Advertisement, error) {
	if instance == "" {
		instance = DefaultInstance()
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, advertisedTXT(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising relay over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertisement{server: server}, nil
}

// FindRelay searches for any relay with the given timeout
func FindRelay(ctx context.Context, timeout time.Duration) (*Relay, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.WaitForRelay(ctx, "")
}
