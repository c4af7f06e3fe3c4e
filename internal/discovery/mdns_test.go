package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name: "IPv4 service",
			entry: &zeroconf.ServiceEntry{
				HostName: "intesis-0a1b2c.local.",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				Text:     []string{"path=/"},
			},
			wantIP:   "192.168.1.50",
			wantPort: 80,
		},
		{
			name: "custom port",
			entry: &zeroconf.ServiceEntry{
				HostName: "ac.local",
				Port:     8080,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantIP:   "10.0.0.5",
			wantPort: 8080,
		},
		{
			name: "no port defaults to 80",
			entry: &zeroconf.ServiceEntry{
				HostName: "ac.local",
				AddrIPv4: []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantIP:   "172.16.0.1",
			wantPort: 80,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				HostName: "ac.local",
				Port:     80,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantIP:   "fe80::1",
			wantPort: 80,
		},
		{
			name: "prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "ac.local",
				Port:     80,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.51")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			wantIP:   "192.168.1.51",
			wantPort: 80,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				HostName: "ac.local",
				Port:     80,
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if c != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", c)
				}
				return
			}
			if c == nil {
				t.Fatal("parseServiceEntry() = nil, want candidate")
			}
			if c.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", c.IP, tt.wantIP)
			}
			if c.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", c.Port, tt.wantPort)
			}
			if c.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt should be set")
			}
		})
	}
}

func TestParseServiceEntryTXT(t *testing.T) {
	c := parseServiceEntry(&zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "Intesis AC"},
		HostName:      "ac.local",
		AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
		Text:          []string{"path=/", "flag", "kv=a=b"},
	})
	if c == nil {
		t.Fatal("parseServiceEntry() = nil")
	}
	if c.Instance != "Intesis AC" {
		t.Errorf("Instance = %v, want Intesis AC", c.Instance)
	}
	if got := c.GetMetadata("path"); got != "/" {
		t.Errorf("GetMetadata(path) = %q, want /", got)
	}
	if _, ok := c.Metadata["flag"]; !ok {
		t.Error("key without value should be kept")
	}
	if got := c.GetMetadata("kv"); got != "a=b" {
		t.Errorf("GetMetadata(kv) = %q, want a=b", got)
	}
	if got := c.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q, want empty", got)
	}
}

func TestCandidateAddress(t *testing.T) {
	tests := []struct {
		c       Candidate
		addr    string
		baseURL string
	}{
		{Candidate{IP: "192.168.1.50", Port: 80}, "192.168.1.50:80", "http://192.168.1.50:80"},
		{Candidate{IP: "fe80::1", Port: 8080}, "[fe80::1]:8080", "http://[fe80::1]:8080"},
	}
	for _, tt := range tests {
		if got := tt.c.Address(); got != tt.addr {
			t.Errorf("Address() = %v, want %v", got, tt.addr)
		}
		if got := tt.c.BaseURL(); got != tt.baseURL {
			t.Errorf("BaseURL() = %v, want %v", got, tt.baseURL)
		}
	}
}

func TestNewScanner(t *testing.T) {
	s := NewScanner()
	if s.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", s.Timeout, DefaultScanTimeout)
	}
	if s.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("ProbeTimeout = %v, want %v", s.ProbeTimeout, DefaultProbeTimeout)
	}
}
