package climate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/muurk/intesis/internal/deviceapi"
)

// ErrInvalidMode is returned when a mode name is not in the lookup table
var ErrInvalidMode = errors.New("invalid mode")

// HVAC mode names
const (
	HVACOff     = "off"
	HVACAuto    = "auto"
	HVACCool    = "cool"
	HVACHeat    = "heat"
	HVACDry     = "dry"
	HVACFanOnly = "fan_only"
)

// Preset names
const (
	PresetNone  = "none"
	PresetEco   = "eco"
	PresetBoost = "boost"
)

// VaneSwing is the name of the swinging vane position (device value 10)
const VaneSwing = "on"

// VaneSwingValue is the device value for a swinging vane
const VaneSwingValue = 10

type entry struct {
	value int
	name  string
}

// Table is a bidirectional mapping between device values and mode names
type Table struct {
	kind    string
	entries []entry
	byValue map[int]string
	byName  map[string]int
}

func newTable(kind string, entries ...entry) *Table {
	t := &Table{
		kind:    kind,
		entries: entries,
		byValue: make(map[int]string, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		t.byValue[e.value] = e.name
		t.byName[e.name] = e.value
	}
	return t
}

// Name returns the mode name for a device value
func (t *Table) Name(value int) (string, bool) {
	name, ok := t.byValue[value]
	return name, ok
}

// Value returns the device value for a mode name
func (t *Table) Value(name string) (int, error) {
	v, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %s %q (valid: %s)", ErrInvalidMode, t.kind, name, strings.Join(t.Names(), ", "))
	}
	return v, nil
}

// Names returns the mode names in device value order
func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}

// Lookup tables for the mode datapoints
var (
	ModeTable = newTable("hvac mode",
		entry{0, HVACAuto},
		entry{1, HVACCool},
		entry{2, HVACHeat},
		entry{3, HVACDry},
		entry{4, HVACFanOnly},
	)

	FanTable = newTable("fan mode",
		entry{0, "auto"},
		entry{1, "low"},
		entry{2, "medium_low"},
		entry{3, "medium"},
		entry{4, "medium_high"},
		entry{5, "high"},
		entry{6, "highest"},
	)

	SwingTable = newTable("swing mode",
		entry{0, "position_1"},
		entry{1, "position_2"},
		entry{2, "position_3"},
		entry{3, "position_4"},
		entry{4, "position_5"},
		entry{VaneSwingValue, VaneSwing},
	)

	HorizontalVaneTable = newTable("horizontal vane",
		entry{0, "position_1"},
		entry{1, "position_2"},
		entry{2, "position_3"},
		entry{3, "position_4"},
		entry{4, "position_5"},
		entry{5, "position_6"},
		entry{VaneSwingValue, VaneSwing},
	)

	PresetTable = newTable("preset",
		entry{0, PresetNone},
		entry{1, PresetEco},
		entry{2, PresetBoost},
	)
)

// HVACModes returns every selectable HVAC mode, off first
func HVACModes() []string {
	return append([]string{HVACOff}, ModeTable.Names()...)
}

// HVACModeName derives the HVAC mode from the power and mode datapoints.
// Unknown mode values read as auto.
func HVACModeName(power, mode int) string {
	if power == 0 {
		return HVACOff
	}
	if name, ok := ModeTable.Name(mode); ok {
		return name
	}
	return HVACAuto
}

// TempSteps lists the supported temperature steps in °C
var TempSteps = []float64{0.5, 1.0}

// ValidTempStep reports whether step is a supported temperature step
func ValidTempStep(step float64) bool {
	for _, s := range TempSteps {
		if s == step {
			return true
		}
	}
	return false
}

// TenthsToCelsius converts a device temperature to °C
func TenthsToCelsius(tenths int) float64 {
	return float64(tenths) / 10
}

// CelsiusToTenths converts °C to the device representation
func CelsiusToTenths(c float64) int {
	return int(math.Round(c * 10))
}

// QuantizeTemperature rounds c to the nearest multiple of step
func QuantizeTemperature(c, step float64) float64 {
	if step <= 0 {
		return c
	}
	return math.Round(c/step) * step
}

// Limits returns the setpoint limits in tenths, falling back to the defaults
// when the device reports none (or zero).
func Limits(state deviceapi.State) (minTenths, maxTenths int) {
	minTenths = state.Get(deviceapi.UIDMinTemp, 0)
	if minTenths == 0 {
		minTenths = deviceapi.DefaultMinTempTenths
	}
	maxTenths = state.Get(deviceapi.UIDMaxTemp, 0)
	if maxTenths == 0 {
		maxTenths = deviceapi.DefaultMaxTempTenths
	}
	return minTenths, maxTenths
}

// ClampTenths bounds a setpoint to [minTenths, maxTenths]
func ClampTenths(v, minTenths, maxTenths int) int {
	if v < minTenths {
		return minTenths
	}
	if v > maxTenths {
		return maxTenths
	}
	return v
}
