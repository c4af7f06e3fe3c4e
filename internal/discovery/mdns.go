package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type the adapters' web server advertises
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultProbeTimeout bounds the getinfo call made to each candidate
	DefaultProbeTimeout = 3 * time.Second

	// DefaultPort is the default HTTP port of the adapters
	DefaultPort = 80

	// maxParallelProbes limits concurrent getinfo probes
	maxParallelProbes = 8
)

// Scanner finds Intesis adapters on the local network
type Scanner struct {
	// Timeout is how long to browse for mDNS services
	Timeout time.Duration

	// ProbeTimeout bounds each getinfo probe
	ProbeTimeout time.Duration

	// Logger (default: no-op)
	Logger *zap.Logger
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:      DefaultScanTimeout,
		ProbeTimeout: DefaultProbeTimeout,
		Logger:       zap.NewNop(),
	}
}

// Scan browses for HTTP services and keeps those that answer getinfo
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	candidates, err := s.Browse(ctx)
	if err != nil {
		return nil, err
	}
	s.logger().Debug("mDNS browse finished", zap.Int("candidates", len(candidates)))
	return s.ProbeAll(ctx, candidates), nil
}

// Browse collects every _http._tcp service seen before the timeout
func (s *Scanner) Browse(ctx context.Context) ([]*Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu         sync.Mutex
		candidates []*Candidate
		seen       = make(map[string]bool)
		done       = make(chan struct{})
	)

	go func() {
		defer close(done)
		for entry := range entries {
			c := parseServiceEntry(entry)
			if c == nil {
				continue
			}
			mu.Lock()
			if !seen[c.Address()] {
				seen[c.Address()] = true
				candidates = append(candidates, c)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes entries once the browse context ends
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Candidate(nil), candidates...), nil
}

func (s *Scanner) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// parseServiceEntry converts a zeroconf service entry to a Candidate.
// Returns nil if the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Candidate {
	if entry == nil {
		return nil
	}

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

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Candidate{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
