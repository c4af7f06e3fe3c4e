package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/muurk/intesis/internal/deviceapi"
)

// Candidate is an HTTP service seen over mDNS. It may or may not be an
// Intesis adapter until it has been probed.
type Candidate struct {
	// Instance is the mDNS service instance name
	Instance string

	// Hostname is the mDNS hostname (e.g., "intesis-0a1b2c.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the service has none
	IP string

	// Port is the HTTP port (typically 80)
	Port int

	// Metadata contains the mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the service was seen
	DiscoveredAt time.Time
}

// Address returns host:port for the candidate
func (c *Candidate) Address() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}

// BaseURL returns the HTTP base URL for the candidate
func (c *Candidate) BaseURL() string {
	return "http://" + c.Address()
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (c *Candidate) GetMetadata(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Device is a candidate that answered getinfo like an Intesis adapter
type Device struct {
	Candidate

	// Serial is the device serial number without the " / ..." suffix
	Serial string

	// Model is the deviceModel reported by getinfo
	Model string

	// Firmware is the fwVersion reported by getinfo
	Firmware string

	// MAC is the station MAC address
	MAC string

	// Info is the full getinfo answer
	Info *deviceapi.DeviceInfo
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("Intesis %s %s at %s", d.Model, d.Serial, d.Address())
}

// Name returns the display name derived from the model
func (d *Device) Name() string {
	return d.Info.DisplayName()
}
