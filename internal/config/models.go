package config

import (
	"sort"
	"strings"
	"time"

	"github.com/muurk/intesis/internal/climate"
)

// Registry represents the entire user configuration file.
// This stores known devices and application preferences for the CLI.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device serial number
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents one known Intesis adapter.
// This is keyed by the device's serial number in the Registry.
type Device struct {
	Host     string         `yaml:"host"`                // IP address or hostname
	Port     int            `yaml:"port,omitempty"`      // HTTP port (default 80)
	Username string         `yaml:"username,omitempty"`  // Login user (default admin)
	Nickname string         `yaml:"nickname,omitempty"`  // User-friendly name
	Model    string         `yaml:"model,omitempty"`     // deviceModel from getinfo
	Firmware string         `yaml:"firmware,omitempty"`  // fwVersion from getinfo
	LastSeen time.Time      `yaml:"last_seen,omitempty"` // Last successful contact
	Options  *DeviceOptions `yaml:"options,omitempty"`
}

// DeviceOptions are the per-device polling and reconciliation settings
type DeviceOptions struct {
	ScanInterval time.Duration `yaml:"scan_interval,omitempty"`
	TempStep     float64       `yaml:"temp_step,omitempty"`
	SettleDelay  time.Duration `yaml:"settle_delay,omitempty"`
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
}

// ClimateOptions converts the stored options, filling defaults for unset fields
func (o *DeviceOptions) ClimateOptions() climate.Options {
	opts := climate.DefaultOptions()
	if o == nil {
		return opts
	}
	if o.ScanInterval > 0 {
		opts.ScanInterval = o.ScanInterval
	}
	if o.TempStep > 0 {
		opts.TempStep = o.TempStep
	}
	if o.SettleDelay > 0 {
		opts.SettleDelay = o.SettleDelay
	}
	if o.MaxAttempts > 0 {
		opts.MaxAttempts = o.MaxAttempts
	}
	return opts
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DiscoverTimeout int        `yaml:"discover_timeout"`       // mDNS discovery timeout in seconds
	DefaultAuth     *AuthPrefs `yaml:"default_auth,omitempty"` // Default authentication preferences
}

// AuthPrefs represents default authentication preferences.
// Note: Passwords are NEVER stored - they come from a flag, INTESIS_PASSWORD or a prompt.
type AuthPrefs struct {
	Username string `yaml:"username"` // Default username (e.g., "admin")
	// Password is NEVER stored in config file for security reasons
}

func defaultPreferences() *Preferences {
	return &Preferences{
		DiscoverTimeout: 5,
		DefaultAuth: &AuthPrefs{
			Username: "admin",
		},
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: defaultPreferences(),
	}
}

// GetDevice retrieves device metadata by serial number.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(serial string) *Device {
	return r.Devices[serial]
}

// FindDevice looks a device up by serial, nickname or host (case-insensitive
// for nicknames). It returns the serial and the entry, or nil.
func (r *Registry) FindDevice(ref string) (string, *Device) {
	if d, ok := r.Devices[ref]; ok {
		return ref, d
	}
	for _, serial := range r.Serials() {
		d := r.Devices[serial]
		if d.Host == ref || (d.Nickname != "" && strings.EqualFold(d.Nickname, ref)) {
			return serial, d
		}
	}
	return "", nil
}

// Serials returns the known serials in sorted order
func (r *Registry) Serials() []string {
	out := make([]string, 0, len(r.Devices))
	for serial := range r.Devices {
		out = append(out, serial)
	}
	sort.Strings(out)
	return out
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(serial string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[serial]; exists {
		return device
	}

	device := &Device{}
	r.Devices[serial] = device
	return device
}

// RecordDevice stores what was learned from a successful contact
func (r *Registry) RecordDevice(serial, host, model, firmware string) *Device {
	device := r.EnsureDevice(serial)
	device.Host = host
	if model != "" {
		device.Model = model
	}
	if firmware != "" {
		device.Firmware = firmware
	}
	device.LastSeen = time.Now()
	return device
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(serial, nickname string) {
	device := r.EnsureDevice(serial)
	device.Nickname = nickname
}

// SetDeviceOptions replaces the options of a device
func (r *Registry) SetDeviceOptions(serial string, opts DeviceOptions) {
	device := r.EnsureDevice(serial)
	device.Options = &opts
}

// RemoveDevice deletes a device. It reports whether the device existed.
func (r *Registry) RemoveDevice(serial string) bool {
	if _, ok := r.Devices[serial]; !ok {
		return false
	}
	delete(r.Devices, serial)
	return true
}

// DefaultUsername returns the preferred login user
func (r *Registry) DefaultUsername() string {
	if r.Preferences != nil && r.Preferences.DefaultAuth != nil && r.Preferences.DefaultAuth.Username != "" {
		return r.Preferences.DefaultAuth.Username
	}
	return "admin"
}

// DisplayName returns the nickname, or "Intesis {model}" when unset
func (d *Device) DisplayName() string {
	if d.Nickname != "" {
		return d.Nickname
	}
	if d.Model != "" {
		return "Intesis " + d.Model
	}
	return "Intesis AC"
}
