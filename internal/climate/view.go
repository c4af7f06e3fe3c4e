package climate

import (
	"time"

	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/reconcile"
)

// View is the climate entity as a thermostat UI sees it
type View struct {
	HVACMode           string   `json:"hvac_mode"`
	HVACModes          []string `json:"hvac_modes"`
	TargetTemperature  *float64 `json:"target_temperature"`
	CurrentTemperature *float64 `json:"current_temperature"`
	MinTemperature     float64  `json:"min_temp"`
	MaxTemperature     float64  `json:"max_temp"`
	TemperatureStep    float64  `json:"target_temp_step"`
	FanMode            string   `json:"fan_mode,omitempty"`
	FanModes           []string `json:"fan_modes"`
	SwingMode          string   `json:"swing_mode,omitempty"`
	SwingModes         []string `json:"swing_modes"`
	PresetMode         string   `json:"preset_mode,omitempty"`
	PresetModes        []string `json:"preset_modes"`

	// HorizontalVane is the raw UID 6 value; HorizontalSwing is set when it is 10
	HorizontalVane     int    `json:"horizontal_vane"`
	HorizontalVaneMode string `json:"horizontal_vane_mode,omitempty"`
	HorizontalSwing    bool   `json:"horizontal_swing"`

	Sensors       Sensors       `json:"sensors"`
	BinarySensors BinarySensors `json:"binary_sensors"`
	Available     bool          `json:"available"`
}

// Sensors are the numeric side entities of a device
type Sensors struct {
	CurrentTemperature *float64 `json:"current_temperature"`
	WiFiSignal         *int     `json:"wifi_signal"`
	MinTempLimit       *float64 `json:"min_temp_limit"`
	MaxTempLimit       *float64 `json:"max_temp_limit"`
}

// BinarySensors are the on/off side entities of a device
type BinarySensors struct {
	ACConnection    bool `json:"ac_connection"`
	WiFiConnection  bool `json:"wifi_connection"`
	CloudConnection bool `json:"cloud_connection"`
	Error           bool `json:"error"`
	ErrorCode       int  `json:"error_code"`
}

// Status is a snapshot of everything the controller knows
type Status struct {
	Host       string                    `json:"host"`
	Serial     string                    `json:"serial"`
	Name       string                    `json:"name"`
	DeviceInfo *deviceapi.DeviceInfo     `json:"device_info,omitempty"`
	State      deviceapi.State           `json:"state"`
	Confirmed  deviceapi.State           `json:"confirmed"`
	Pending    []reconcile.PendingChange `json:"pending"`
	Available  bool                      `json:"available"`
	LastError  string                    `json:"last_error,omitempty"`
	LastUpdate time.Time                 `json:"last_update"`
	Climate    View                      `json:"climate"`
}

// Diagnostics is the redacted support dump of one device
type Diagnostics struct {
	Config     DiagnosticsConfig         `json:"config"`
	DeviceInfo map[string]any            `json:"device_info"`
	Datapoints map[string]int            `json:"datapoints"`
	Available  bool                      `json:"available"`
	Pending    []reconcile.PendingChange `json:"pending"`
	LastError  string                    `json:"last_error,omitempty"`
	Exchanges  []deviceapi.Exchange      `json:"exchanges"`
}

// DiagnosticsConfig is the configuration part of Diagnostics
type DiagnosticsConfig struct {
	Host         string  `json:"host"`
	ScanInterval int     `json:"scan_interval"`
	TempStep     float64 `json:"temp_step"`
	SettleDelay  string  `json:"settle_delay"`
	MaxAttempts  int     `json:"max_attempts"`
}

func floatPtr(v float64) *float64 { return &v }

// buildView derives the climate view from an exposed state
func buildView(state deviceapi.State, info *deviceapi.DeviceInfo, step float64, available bool) View {
	minTenths, maxTenths := Limits(state)

	v := View{
		HVACMode:        HVACModeName(state.Get(deviceapi.UIDPower, 0), state.Get(deviceapi.UIDMode, 0)),
		HVACModes:       HVACModes(),
		MinTemperature:  TenthsToCelsius(minTenths),
		MaxTemperature:  TenthsToCelsius(maxTenths),
		TemperatureStep: step,
		FanModes:        FanTable.Names(),
		SwingModes:      SwingTable.Names(),
		PresetModes:     PresetTable.Names(),
		Available:       available,
	}

	if sp, ok := state[deviceapi.UIDSetpoint]; ok {
		v.TargetTemperature = floatPtr(TenthsToCelsius(sp))
	}
	if cur, ok := state[deviceapi.UIDCurrentTemp]; ok {
		v.CurrentTemperature = floatPtr(TenthsToCelsius(cur))
		v.Sensors.CurrentTemperature = v.CurrentTemperature
	}
	v.FanMode, _ = FanTable.Name(state.Get(deviceapi.UIDFanSpeed, 0))
	v.SwingMode, _ = SwingTable.Name(state.Get(deviceapi.UIDVaneVertical, 0))
	v.PresetMode, _ = PresetTable.Name(state.Get(deviceapi.UIDQuietMode, 0))

	v.HorizontalVane = state.Get(deviceapi.UIDVaneHorizontal, 0)
	v.HorizontalVaneMode, _ = HorizontalVaneTable.Name(v.HorizontalVane)
	v.HorizontalSwing = v.HorizontalVane == VaneSwingValue

	if lo, ok := state[deviceapi.UIDMinTemp]; ok {
		v.Sensors.MinTempLimit = floatPtr(TenthsToCelsius(lo))
	}
	if hi, ok := state[deviceapi.UIDMaxTemp]; ok {
		v.Sensors.MaxTempLimit = floatPtr(TenthsToCelsius(hi))
	}

	errCode := state.Get(deviceapi.UIDErrorCode, 0)
	v.BinarySensors.ErrorCode = errCode
	v.BinarySensors.Error = errCode != 0
	if info != nil {
		rssi := info.RSSI
		v.Sensors.WiFiSignal = &rssi
		v.BinarySensors.ACConnection = info.ACConnected()
		v.BinarySensors.WiFiConnection = info.WiFiConnected()
		v.BinarySensors.CloudConnection = info.CloudConnected()
		v.BinarySensors.Error = v.BinarySensors.Error || info.LastError != 0
	}

	return v
}
