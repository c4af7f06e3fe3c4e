package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/muurk/intesis/internal/deviceapi"
)

// Probe asks a candidate for getinfo. A candidate that does not answer like
// an Intesis adapter yields an error.
func (s *Scanner) Probe(ctx context.Context, c *Candidate) (*Device, error) {
	timeout := s.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	client := deviceapi.NewClient(
		deviceapi.Credentials{Host: c.IP},
		deviceapi.WithPort(c.Port),
		deviceapi.WithTimeout(timeout),
		deviceapi.WithRateLimit(rate.Inf, 1),
		deviceapi.WithLogger(s.logger().Named("probe")),
	)

	info, err := client.GetDeviceInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info.SerialRaw == "" && info.Model == "" {
		return nil, deviceapi.NewProtocolError("getinfo answer has neither serial nor model", nil)
	}

	return &Device{
		Candidate: *c,
		Serial:    info.Serial(),
		Model:     info.Model,
		Firmware:  info.FWVersion,
		MAC:       info.WlanSTAMAC,
		Info:      info,
	}, nil
}

// ProbeAll probes candidates in parallel and returns the adapters found,
// sorted by address. Candidates that fail the probe are skipped.
func (s *Scanner) ProbeAll(ctx context.Context, candidates []*Candidate) []*Device {
	var (
		mu      sync.Mutex
		devices []*Device
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for _, c := range candidates {
		g.Go(func() error {
			d, err := s.Probe(ctx, c)
			if err != nil {
				s.logger().Debug("not an Intesis adapter",
					zap.String("address", c.Address()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			devices = append(devices, d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address() < devices[j].Address()
	})
	return devices
}

// ProbeHost probes one host directly, without mDNS
func ProbeHost(ctx context.Context, host string, port int, timeout time.Duration) (*Device, error) {
	if port == 0 {
		port = DefaultPort
	}
	s := NewScanner()
	s.ProbeTimeout = timeout
	return s.Probe(ctx, &Candidate{IP: host, Port: port, DiscoveredAt: time.Now()})
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.Scan(ctx)
}
