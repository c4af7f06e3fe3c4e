package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/reconcile"
	"github.com/muurk/intesis/internal/tui"
	"github.com/muurk/intesis/internal/ui"
)

// Control command flags
var (
	noWait         bool
	diagnosticsOut string
)

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(diagnosticsCmd)
}

// showCmd prints the current climate state
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the climate state",
	Long:  `Log in, read every datapoint and show the climate state of an adapter.`,
	Example: `  intesis-cfg show --device bedroom
  intesis-cfg show --device 192.168.1.50 --format json`,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctrl, t, err := newController(cmd.Context())
	if err != nil {
		return err
	}
	defer ctrl.Close()

	status := ctrl.Status()
	if jsonOutput() {
		return printJSON(status)
	}

	printStatus(t, status)
	return nil
}

func printStatus(t target, s climate.Status) {
	v := s.Climate
	fmt.Printf("%s (%s) at %s\n\n", s.Name, s.Serial, t)

	fmt.Println("Climate:")
	fmt.Printf("  HVAC mode:        %s\n", v.HVACMode)
	fmt.Printf("  Target:           %s\n", formatTemp(v.TargetTemperature))
	fmt.Printf("  Room:             %s\n", formatTemp(v.CurrentTemperature))
	fmt.Printf("  Setpoint range:   %.1f - %.1f°C (step %.1f)\n", v.MinTemperature, v.MaxTemperature, v.TemperatureStep)
	fmt.Printf("  Fan:              %s\n", orDash(v.FanMode))
	fmt.Printf("  Vertical vane:    %s\n", orDash(v.SwingMode))
	fmt.Printf("  Horizontal vane:  %s\n", orDash(v.HorizontalVaneMode))
	fmt.Printf("  Preset:           %s\n", orDash(v.PresetMode))
	fmt.Println()

	fmt.Println("Adapter:")
	if v.Sensors.WiFiSignal != nil {
		fmt.Printf("  WiFi signal:      %d dBm\n", *v.Sensors.WiFiSignal)
	}
	fmt.Printf("  AC link:          %s\n", onOff(v.BinarySensors.ACConnection))
	fmt.Printf("  Cloud link:       %s\n", onOff(v.BinarySensors.CloudConnection))
	if v.BinarySensors.Error {
		fmt.Printf("  Error code:       %d\n", v.BinarySensors.ErrorCode)
	}
	fmt.Println()

	fmt.Println("Datapoints:")
	uids := make([]int, 0, len(s.State))
	for uid := range s.State {
		uids = append(uids, int(uid))
	}
	sort.Ints(uids)
	for _, n := range uids {
		uid := deviceapi.UID(n)
		fmt.Printf("  %3d %-20s %d\n", n, uid.Name(), s.State[uid])
	}
}

func formatTemp(t *float64) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// setCmd changes climate settings and waits for the device to confirm
var setCmd = &cobra.Command{
	Use:   "set <key> <value> [<key> <value>...]",
	Short: "Change climate settings",
	Long: `Change one or more climate settings.

Keys:
  mode         off, auto, cool, heat, dry, fan_only
  temp         target temperature in °C (rounded to the device step)
  fan          auto, low, medium_low, medium, medium_high, high, highest
  swing        vertical vane: position_1..position_5, on
  hvane        horizontal vane: position_1..position_6, on
  preset       none, eco, boost
  power        on, off
  <uid|name>   raw datapoint value, e.g. 12 1 or quiet_mode 1

Each change is written, then verified by reading the device back. The
command waits for every change to be confirmed or reverted unless --no-wait
is given.`,
	Example: `  intesis-cfg set mode heat temp 21.5 --device bedroom
  intesis-cfg set fan=low swing=on
  intesis-cfg set power off --no-wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once the changes are written, without verification")
}

func runSet(cmd *cobra.Command, args []string) error {
	settings, err := parseSettings(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ctrl, t, err := newController(ctx)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	var (
		mu       sync.Mutex
		outcomes []reconcile.Event
	)
	unsubscribe := ctrl.OnEvent(func(ev reconcile.Event) {
		if ev.Type == reconcile.EventWritten || (ev.Type.Terminal() && ev.Type != reconcile.EventSuperseded) || ev.Type == reconcile.EventRetry {
			mu.Lock()
			outcomes = append(outcomes, ev)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	fmt.Printf("Applying to %s (%s)...\n", t, ctrl.Status().Serial)
	for _, s := range settings {
		if err := applySetting(ctrl, s); err != nil {
			return fmt.Errorf("%s: %w", s.Key, err)
		}
	}

	opts := ctrl.Options()
	wait := opts.SettleDelay*time.Duration(opts.MaxAttempts+1) + 2*requestTimeout()
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if noWait {
		err = waitWritten(waitCtx, ctrl)
	} else {
		err = ctrl.WaitSettled(waitCtx)
	}

	mu.Lock()
	defer mu.Unlock()
	failed := false
	for _, ev := range outcomes {
		if noWait && ev.Type != reconcile.EventWritten {
			continue
		}
		line, ok := describeEvent(ev)
		if !ok {
			failed = true
		}
		if line != "" {
			fmt.Println(line)
		}
	}
	fmt.Println()

	if err != nil {
		fmt.Println(ui.NewFailureResult("Gave up waiting for the device", err, []string{
			"Check the adapter with 'intesis-cfg show'",
			"Raise --timeout or the settle delay with 'intesis-cfg devices options'",
		}))
		return fmt.Errorf("gave up waiting for the device: %w", err)
	}
	if failed {
		fmt.Println(ui.NewWarningResult("The device did not accept every change", settingDetails(ctrl.Status())...))
		return errors.New("the device did not accept every change")
	}

	title := "Changes confirmed"
	if noWait {
		title = "Changes written"
	}
	fmt.Println(ui.NewSuccessResult(title, settingDetails(ctrl.Status())...))
	return nil
}

// settingDetails summarizes the climate state for a result box
func settingDetails(s climate.Status) []ui.Detail {
	v := s.Climate
	return []ui.Detail{
		{Key: "HVAC mode", Value: v.HVACMode},
		{Key: "Target", Value: formatTemp(v.TargetTemperature)},
		{Key: "Fan", Value: orDash(v.FanMode)},
		{Key: "Swing", Value: orDash(v.SwingMode)},
		{Key: "Preset", Value: orDash(v.PresetMode)},
	}
}

// waitWritten returns once no queued change is waiting for its write
func waitWritten(ctx context.Context, ctrl *climate.Controller) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		written := true
		for _, p := range ctrl.Status().Pending {
			if !p.Acknowledged {
				written = false
				break
			}
		}
		if written {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// describeEvent renders one outcome; ok is false for failures
func describeEvent(ev reconcile.Event) (line string, ok bool) {
	name := ev.UID.Name()
	switch ev.Type {
	case reconcile.EventWritten:
		if noWait {
			return fmt.Sprintf("✓ %s = %d written (not verified)", name, ev.Value), true
		}
		return "", true
	case reconcile.EventConfirmed:
		return fmt.Sprintf("✓ %s = %d confirmed", name, ev.Value), true
	case reconcile.EventRetry:
		return fmt.Sprintf("⟳ %s: device still reports %d, writing again (attempt %d)", name, ev.DeviceValue, ev.Attempt+1), true
	case reconcile.EventCorrected:
		return fmt.Sprintf("⚠ %s: device settled on %d instead of %d", name, ev.DeviceValue, ev.Value), false
	case reconcile.EventReverted:
		reason := "rejected"
		if ev.Err != nil {
			reason = deviceapi.GetShortErrorMessage(ev.Err)
		}
		return fmt.Sprintf("✗ %s = %d reverted: %s", name, ev.Value, reason), false
	}
	return "", true
}

// watchCmd shows the live dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard",
	Long: `Show a live dashboard of the adapter and change settings interactively.

The adapter is polled at its scan interval; changes made in the dashboard
show immediately and are confirmed by the following reads.`,
	Example: `  intesis-cfg watch --device bedroom`,
	RunE:    runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ctrl, t, err := newController(ctx)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return deviceError(t, err)
	}
	if err := tui.Run(ctx, ctrl); err != nil {
		if errors.Is(err, tui.ErrNotTerminal) {
			return fmt.Errorf("%w; use 'intesis-cfg show' instead", err)
		}
		return err
	}
	return nil
}

// diagnosticsCmd dumps the redacted support data
var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Dump redacted diagnostics",
	Long: `Collect a support dump: configuration, device info, every datapoint and the
last raw exchanges with the adapter. Passwords, session IDs, MAC addresses
and serial numbers are redacted.`,
	Example: `  intesis-cfg diagnostics --device bedroom --output intesis-diagnostics.json`,
	RunE:    runDiagnostics,
}

func init() {
	diagnosticsCmd.Flags().StringVarP(&diagnosticsOut, "output", "o", "", "Write to a file instead of stdout")
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	ctrl, _, err := newController(cmd.Context())
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if diagnosticsOut == "" {
		return printJSON(ctrl.Diagnostics())
	}

	data, err := json.MarshalIndent(ctrl.Diagnostics(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	if err := os.WriteFile(diagnosticsOut, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", diagnosticsOut, err)
	}
	fmt.Printf("✓ Diagnostics written to %s\n", diagnosticsOut)
	return nil
}
