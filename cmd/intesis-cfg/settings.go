package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/intesis/internal/deviceapi"
)

// settable is the part of climate.Controller that `set` drives
type settable interface {
	SetHVACMode(mode string) error
	SetTemperature(celsius float64) error
	SetFanMode(mode string) error
	SetSwingMode(mode string) error
	SetHorizontalVane(mode string) error
	SetPresetMode(mode string) error
	TurnOn() error
	TurnOff() error
	SetDatapoint(uid deviceapi.UID, value int) error
}

// setting is one key=value pair from the command line
type setting struct {
	Key   string
	Value string
}

// parseSettings accepts "key value" pairs and "key=value" words, mixed
func parseSettings(args []string) ([]setting, error) {
	var out []setting
	for i := 0; i < len(args); i++ {
		if k, v, ok := strings.Cut(args[i], "="); ok {
			out = append(out, setting{Key: k, Value: v})
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("missing value for %q", args[i])
		}
		out = append(out, setting{Key: args[i], Value: args[i+1]})
		i++
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("nothing to set")
	}
	return out, nil
}

// applySetting requests one change. Unknown keys are tried as datapoint
// UIDs or names, e.g. "9=230" or "quiet_mode=1".
func applySetting(ctrl settable, s setting) error {
	key := strings.ToLower(strings.TrimSpace(s.Key))
	value := strings.TrimSpace(s.Value)

	switch key {
	case "mode", "hvac", "hvac_mode":
		return ctrl.SetHVACMode(value)
	case "temp", "temperature", "target":
		c, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q", value)
		}
		return ctrl.SetTemperature(c)
	case "fan", "fan_mode":
		return ctrl.SetFanMode(value)
	case "swing", "swing_mode", "vane":
		return ctrl.SetSwingMode(value)
	case "hvane", "horizontal_vane":
		return ctrl.SetHorizontalVane(value)
	case "preset", "preset_mode":
		return ctrl.SetPresetMode(value)
	case "power":
		switch strings.ToLower(value) {
		case "on", "1", "true":
			return ctrl.TurnOn()
		case "off", "0", "false":
			return ctrl.TurnOff()
		}
		return fmt.Errorf("invalid power value %q (use on or off)", value)
	}

	uid, err := deviceapi.ParseUID(key)
	if err != nil {
		return fmt.Errorf("unknown setting %q", s.Key)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("datapoint %s needs an integer value, got %q", uid.Name(), value)
	}
	return ctrl.SetDatapoint(uid, n)
}
