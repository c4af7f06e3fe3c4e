package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/config"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/discovery"
	"github.com/muurk/intesis/internal/logging"
)

// PasswordEnvVar supplies the device password without a prompt
const PasswordEnvVar = "INTESIS_PASSWORD"

// Connection flags shared by every device command
var (
	deviceRef     string
	devicePort    int
	username      string
	password      string
	outputFormat  string
	timeoutSecs   int
	autoDiscovery = true
)

func init() {
	rootCmd.PersistentFlags().StringVar(&deviceRef, "device", "", "Device host, serial or nickname (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 0, "Device HTTP port (default 80, or the registry value)")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Device username (default admin)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Device password (or set "+PasswordEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().IntVar(&timeoutSecs, "timeout", 10, "Request timeout in seconds")
}

// target is the device a command talks to
type target struct {
	Host     string
	Port     int
	Username string
	Serial   string         // empty until known
	Entry    *config.Device // registry entry, or nil
}

func (t target) String() string {
	if t.Port == 0 || t.Port == deviceapi.DefaultPort {
		return t.Host
	}
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// resolveTarget picks the device from --device, the registry or discovery
func resolveTarget(ctx context.Context) (target, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return target{}, fmt.Errorf("failed to load device registry: %w", err)
	}

	var t target
	switch {
	case deviceRef != "":
		if serial, entry := reg.FindDevice(deviceRef); entry != nil {
			t = fromEntry(serial, entry)
		} else {
			t = target{Host: deviceRef}
		}

	case len(reg.Devices) == 1:
		serial := reg.Serials()[0]
		t = fromEntry(serial, reg.Devices[serial])

	case len(reg.Devices) > 1:
		fmt.Println("Known devices:")
		for _, serial := range reg.Serials() {
			fmt.Printf("  %s (%s)\n", reg.Devices[serial].DisplayName(), reg.Devices[serial].Host)
		}
		return target{}, errors.New("multiple devices known. Use --device to pick one")

	default:
		if !autoDiscovery {
			return target{}, errors.New("no device specified. Use --device")
		}
		d, err := discoverOne(ctx, reg)
		if err != nil {
			return target{}, err
		}
		t = target{Host: d.IP, Port: d.Port, Serial: d.Serial}
	}

	if devicePort != 0 {
		t.Port = devicePort
	}
	if t.Port == 0 {
		t.Port = deviceapi.DefaultPort
	}
	if username != "" {
		t.Username = username
	}
	if t.Username == "" {
		t.Username = reg.DefaultUsername()
	}
	return t, nil
}

func fromEntry(serial string, entry *config.Device) target {
	return target{
		Host:     entry.Host,
		Port:     entry.Port,
		Username: entry.Username,
		Serial:   serial,
		Entry:    entry,
	}
}

func discoverOne(ctx context.Context, reg *config.Registry) (*discovery.Device, error) {
	scanTimeout := time.Duration(reg.Preferences.DiscoverTimeout) * time.Second

	fmt.Println("No device specified, attempting auto-discovery...")
	devices, err := discovery.ScanForDevices(ctx, scanTimeout)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		return nil, errors.New("no devices found. Use --device flag to specify the host manually")
	}
	if len(devices) > 1 {
		fmt.Printf("Found %d devices:\n", len(devices))
		for i, d := range devices {
			fmt.Printf("%d. %s (%s)\n", i+1, d.Serial, d.IP)
		}
		return nil, errors.New("multiple devices found. Use --device flag to specify which one")
	}

	d := devices[0]
	fmt.Printf("Found device: %s (%s)\n\n", d.Serial, d.IP)
	return d, nil
}

// resolvePassword returns --password, INTESIS_PASSWORD or a prompted
// password, in that order. An empty prompt answer means the factory default.
func resolvePassword(t target) (string, error) {
	if password != "" {
		return password, nil
	}
	if env := os.Getenv(PasswordEnvVar); env != "" {
		return env, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return deviceapi.DefaultPassword, nil
	}

	fmt.Printf("Password for %s@%s [%s]: ", t.Username, t, deviceapi.DefaultPassword)
	data, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if p := strings.TrimSpace(string(data)); p != "" {
		return p, nil
	}
	return deviceapi.DefaultPassword, nil
}

func requestTimeout() time.Duration {
	if timeoutSecs <= 0 {
		return deviceapi.DefaultTimeout
	}
	return time.Duration(timeoutSecs) * time.Second
}

// newClient builds a client for t; authenticated clients need the password
func newClient(t target, authenticated bool) (*deviceapi.Client, error) {
	creds := deviceapi.Credentials{Host: t.Host, Username: t.Username}
	if authenticated {
		p, err := resolvePassword(t)
		if err != nil {
			return nil, err
		}
		creds.Password = p
	}
	return deviceapi.NewClient(creds,
		deviceapi.WithPort(t.Port),
		deviceapi.WithTimeout(requestTimeout()),
		deviceapi.WithLogger(logging.Named("deviceapi")),
	), nil
}

// newController connects to the resolved device and loads its state
func newController(ctx context.Context) (*climate.Controller, target, error) {
	t, err := resolveTarget(ctx)
	if err != nil {
		return nil, t, err
	}
	client, err := newClient(t, true)
	if err != nil {
		return nil, t, err
	}

	var opts climate.Options
	if t.Entry != nil {
		opts = t.Entry.Options.ClimateOptions()
		opts.Name = t.Entry.Nickname
	} else {
		opts = climate.DefaultOptions()
	}
	opts.Logger = logging.Named("climate")

	ctrl := climate.NewController(client, opts)
	if err := ctrl.Refresh(ctx); err != nil {
		ctrl.Close()
		return nil, t, deviceError(t, err)
	}
	remember(ctrl.Status(), t)
	return ctrl, t, nil
}

// remember records a reachable device in the registry. Failures only log.
func remember(status climate.Status, t target) {
	if status.DeviceInfo == nil {
		return
	}
	reg, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("failed to load registry", zap.Error(err))
		return
	}
	d := reg.RecordDevice(status.Serial, t.Host, status.DeviceInfo.Model, status.DeviceInfo.FWVersion)
	if t.Port != deviceapi.DefaultPort {
		d.Port = t.Port
	}
	if t.Username != reg.DefaultUsername() {
		d.Username = t.Username
	}
	if err := reg.Save(); err != nil {
		logging.Warn("failed to save registry", zap.Error(err))
	}
}

// deviceError adds a troubleshooting hint to a device error
func deviceError(t target, err error) error {
	hint := deviceapi.GetTroubleshootingHint(err)
	if hint == "" {
		return fmt.Errorf("%s: %s", t, deviceapi.GetShortErrorMessage(err))
	}
	return fmt.Errorf("%s: %s\n\n%s", t, deviceapi.GetShortErrorMessage(err), hint)
}

// confirm asks a yes/no question on the terminal
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
