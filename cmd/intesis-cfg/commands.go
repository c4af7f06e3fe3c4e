package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/intesis/internal/config"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/discovery"
	"github.com/muurk/intesis/internal/ui"
)

// Command flags
var (
	scanTimeout int
	scanSave    bool
	nickname    string
	assumeYes   bool
	optScan     time.Duration
	optTempStep float64
	optSettle   time.Duration
	optAttempts int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(devicesCmd)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func jsonOutput() bool {
	return outputFormat == "json"
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Intesis adapters on the network",
	Long: `Scan for Intesis adapters using mDNS/DNS-SD discovery.

Every HTTP service announced on the local network is probed with an
unauthenticated getinfo request; only services that answer like an Intesis
adapter are listed.`,
	Example: `  # Scan with the default timeout
  intesis-cfg scan

  # Longer scan, remember what was found
  intesis-cfg scan --timeout 15 --save`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "scan-timeout", 0, "Scan timeout in seconds (default from preferences)")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Add found devices to the registry")
}

func runScan(cmd *cobra.Command, args []string) error {
	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load device registry: %w", err)
	}
	seconds := scanTimeout
	if seconds <= 0 {
		seconds = reg.Preferences.DiscoverTimeout
	}

	if !jsonOutput() {
		fmt.Printf("Scanning for Intesis adapters (timeout: %ds)...\n\n", seconds)
	}

	devices, err := discovery.ScanForDevices(cmd.Context(), time.Duration(seconds)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanSave && len(devices) > 0 {
		for _, d := range devices {
			entry := reg.RecordDevice(d.Serial, d.IP, d.Model, d.Firmware)
			if d.Port != deviceapi.DefaultPort {
				entry.Port = d.Port
			}
		}
		if err := reg.Save(); err != nil {
			return fmt.Errorf("failed to save registry: %w", err)
		}
	}

	if jsonOutput() {
		if devices == nil {
			devices = []*discovery.Device{}
		}
		return printJSON(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the adapter is powered and joined to your WiFi")
		fmt.Println("  - mDNS does not cross VLANs or most guest networks")
		fmt.Println("  - Try increasing --scan-timeout for slower networks")
		fmt.Println("  - Use 'intesis-cfg info --device <ip>' to check a known address")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.Name())
		fmt.Printf("   Serial:   %s\n", d.Serial)
		fmt.Printf("   Address:  %s\n", d.Address())
		fmt.Printf("   Firmware: %s\n", d.Firmware)
		if d.MAC != "" {
			fmt.Printf("   MAC:      %s\n", d.MAC)
		}
		fmt.Println()
	}

	if scanSave {
		fmt.Println("Devices saved to the registry.")
	}
	fmt.Println("Use 'intesis-cfg validate --device <ip>' to check credentials")
	return nil
}

// infoCmd shows the unauthenticated device information
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show adapter information",
	Long: `Show the model, serial number, firmware and connection state of an adapter.

This uses the unauthenticated getinfo request and needs no password.`,
	Example: `  intesis-cfg info --device 192.168.1.50
  intesis-cfg info --device living-room --format json`,
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	t, err := resolveTarget(ctx)
	if err != nil {
		return err
	}
	client, err := newClient(t, false)
	if err != nil {
		return err
	}

	info, err := client.GetDeviceInfo(ctx)
	if err != nil {
		return deviceError(t, err)
	}

	if jsonOutput() {
		return printJSON(deviceapi.RedactMap(info.Raw))
	}

	fmt.Printf("Device:      %s\n", info.DisplayName())
	fmt.Printf("Address:     %s\n", t)
	fmt.Printf("Serial:      %s\n", info.Serial())
	fmt.Printf("Model:       %s\n", info.Model)
	fmt.Printf("Firmware:    %s\n", info.FWVersion)
	if info.WlanFWVer != "" {
		fmt.Printf("WiFi FW:     %s\n", info.WlanFWVer)
	}
	fmt.Printf("MAC:         %s\n", info.WlanSTAMAC)
	fmt.Printf("WiFi signal: %d dBm\n", info.RSSI)
	fmt.Printf("AC link:     %s\n", onOff(info.ACConnected()))
	fmt.Printf("WiFi link:   %s\n", onOff(info.WiFiConnected()))
	fmt.Printf("Cloud link:  %s\n", onOff(info.CloudConnected()))
	if info.LastError != 0 {
		fmt.Printf("Last error:  %d\n", info.LastError)
	}
	return nil
}

// failureResult turns a device error and its troubleshooting hint into a
// result box
func failureResult(title string, err error) *ui.Result {
	var tips []string
	for _, line := range strings.Split(deviceapi.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		tips = append(tips, strings.TrimPrefix(line, "• "))
	}
	return ui.NewFailureResult(title, errors.New(deviceapi.GetShortErrorMessage(err)), tips)
}

func onOff(b bool) string {
	if b {
		return "connected"
	}
	return "not connected"
}

// validateCmd checks connectivity and credentials
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the adapter is reachable and the credentials work",
	Long: `Check that the adapter answers and accepts the credentials.

The outcome is one of: ok, invalid_auth, cannot_connect, invalid_host or
unknown. On success the adapter is saved to the registry.`,
	Example: `  intesis-cfg validate --device 192.168.1.50
  INTESIS_PASSWORD=secret intesis-cfg validate --device 192.168.1.50 --nickname bedroom`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&nickname, "nickname", "", "Nickname to save with the device")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	t, err := resolveTarget(ctx)
	if err != nil {
		return err
	}
	client, err := newClient(t, true)
	if err != nil {
		return err
	}

	if !jsonOutput() && !ui.Plain() {
		fmt.Println(ui.NewHeader("Validate", "intesis-cfg validate",
			ui.Detail{Key: "Device", Value: t.String()},
			ui.Detail{Key: "Username", Value: t.Username},
		).Render())
		fmt.Println()
	}

	info, err := client.Validate(ctx)
	result := map[string]any{"host": t.Host, "port": t.Port}
	if err != nil {
		code := deviceapi.SetupErrorCode(err)
		if jsonOutput() {
			result["result"] = code
			result["error"] = deviceapi.GetShortErrorMessage(err)
			_ = printJSON(result)
			return errors.New(code)
		}
		fmt.Println(failureResult(code, err))
		return errors.New(code)
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load device registry: %w", err)
	}
	serial := info.Serial()
	entry := reg.RecordDevice(serial, t.Host, info.Model, info.FWVersion)
	if t.Port != deviceapi.DefaultPort {
		entry.Port = t.Port
	}
	if t.Username != reg.DefaultUsername() {
		entry.Username = t.Username
	}
	if nickname != "" {
		reg.SetDeviceNickname(serial, nickname)
	}
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	if jsonOutput() {
		result["result"] = "ok"
		result["serial"] = serial
		result["model"] = info.Model
		return printJSON(result)
	}
	fmt.Println(ui.NewSuccessResult("ok",
		ui.Detail{Key: "Device", Value: info.DisplayName()},
		ui.Detail{Key: "Serial", Value: serial},
		ui.Detail{Key: "Firmware", Value: info.FWVersion},
		ui.Detail{Key: "Registry", Value: "saved"},
	))
	return nil
}

// devicesCmd manages the registry
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List and manage remembered devices",
	Long: `List the adapters remembered in the device registry.

The registry lives in the user config directory (devices.yaml). It stores
hosts, nicknames and per-device options, never passwords.`,
	RunE: runDevicesList,
}

var devicesRenameCmd = &cobra.Command{
	Use:   "rename <device> <nickname>",
	Short: "Set a device nickname",
	Args:  cobra.ExactArgs(2),
	RunE:  runDevicesRename,
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <device>",
	Short: "Forget a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRemove,
}

var devicesOptionsCmd = &cobra.Command{
	Use:     "options <device>",
	Short:   "Set polling and confirmation options of a device",
	Example: `  intesis-cfg devices options bedroom --scan-interval 60s --temp-step 1`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDevicesOptions,
}

func init() {
	devicesRemoveCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	devicesOptionsCmd.Flags().DurationVar(&optScan, "scan-interval", 0, "Poll interval (min 5s)")
	devicesOptionsCmd.Flags().Float64Var(&optTempStep, "temp-step", 0, "Setpoint step in °C (0.5 or 1)")
	devicesOptionsCmd.Flags().DurationVar(&optSettle, "settle-delay", 0, "Wait before verifying a write")
	devicesOptionsCmd.Flags().IntVar(&optAttempts, "max-attempts", 0, "Writes per change before giving up")

	devicesCmd.AddCommand(devicesRenameCmd)
	devicesCmd.AddCommand(devicesRemoveCmd)
	devicesCmd.AddCommand(devicesOptionsCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	reg, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load device registry: %w", err)
	}

	if jsonOutput() {
		return printJSON(reg.Devices)
	}

	if len(reg.Devices) == 0 {
		fmt.Println("No devices remembered. Run 'intesis-cfg scan --save' or 'intesis-cfg validate --device <ip>'.")
		return nil
	}

	path, _ := config.GetConfigPath()
	fmt.Printf("Devices (%s):\n\n", path)
	for _, serial := range reg.Serials() {
		d := reg.Devices[serial]
		fmt.Printf("%s\n", d.DisplayName())
		fmt.Printf("   Serial:    %s\n", serial)
		fmt.Printf("   Host:      %s\n", d.Host)
		if d.Firmware != "" {
			fmt.Printf("   Firmware:  %s\n", d.Firmware)
		}
		if !d.LastSeen.IsZero() {
			fmt.Printf("   Last seen: %s\n", d.LastSeen.Local().Format(time.RFC1123))
		}
		opts := d.Options.ClimateOptions()
		fmt.Printf("   Options:   every %s, step %.1f°C, settle %s, %d attempt(s)\n",
			opts.ScanInterval, opts.TempStep, opts.SettleDelay, opts.MaxAttempts)
		fmt.Println()
	}
	return nil
}

func findDevice(ref string) (*config.Registry, string, error) {
	reg, err := config.LoadRegistry()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load device registry: %w", err)
	}
	serial, d := reg.FindDevice(ref)
	if d == nil {
		return nil, "", fmt.Errorf("no remembered device matches %q", ref)
	}
	return reg, serial, nil
}

func runDevicesRename(cmd *cobra.Command, args []string) error {
	reg, serial, err := findDevice(args[0])
	if err != nil {
		return err
	}
	reg.SetDeviceNickname(serial, args[1])
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	fmt.Printf("✓ %s is now %q\n", serial, args[1])
	return nil
}

func runDevicesRemove(cmd *cobra.Command, args []string) error {
	reg, serial, err := findDevice(args[0])
	if err != nil {
		return err
	}
	if !assumeYes && !confirm(fmt.Sprintf("Forget %s (%s)?", reg.Devices[serial].DisplayName(), serial)) {
		fmt.Println("Cancelled.")
		return nil
	}
	reg.RemoveDevice(serial)
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	fmt.Printf("✓ Removed %s\n", serial)
	return nil
}

func runDevicesOptions(cmd *cobra.Command, args []string) error {
	reg, serial, err := findDevice(args[0])
	if err != nil {
		return err
	}

	current := reg.Devices[serial].Options
	opts := config.DeviceOptions{}
	if current != nil {
		opts = *current
	}
	if cmd.Flags().Changed("scan-interval") {
		opts.ScanInterval = optScan
	}
	if cmd.Flags().Changed("temp-step") {
		opts.TempStep = optTempStep
	}
	if cmd.Flags().Changed("settle-delay") {
		opts.SettleDelay = optSettle
	}
	if cmd.Flags().Changed("max-attempts") {
		opts.MaxAttempts = optAttempts
	}

	effective := opts.ClimateOptions()
	if err := effective.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	reg.SetDeviceOptions(serial, opts)
	if err := reg.Save(); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	fmt.Printf("✓ %s: every %s, step %.1f°C, settle %s, %d attempt(s)\n",
		serial, effective.ScanInterval, effective.TempStep, effective.SettleDelay, effective.MaxAttempts)
	return nil
}
