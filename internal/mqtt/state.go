package mqtt

import (
	"regexp"
	"time"

	"github.com/muurk/intesis/internal/climate"
)

// StatePayload is the JSON published on {base}/{serial}/state
type StatePayload struct {
	HVACMode           string   `json:"hvac_mode"`
	Power              string   `json:"power"`
	TargetTemperature  *float64 `json:"target_temperature"`
	CurrentTemperature *float64 `json:"current_temperature"`
	MinTemp            float64  `json:"min_temp"`
	MaxTemp            float64  `json:"max_temp"`
	FanMode            string   `json:"fan_mode"`
	SwingMode          string   `json:"swing_mode"`
	PresetMode         string   `json:"preset_mode"`
	HorizontalVane     string   `json:"horizontal_vane"`
	HorizontalSwing    bool     `json:"horizontal_swing"`

	WiFiSignal   *int     `json:"wifi_signal"`
	MinTempLimit *float64 `json:"min_temp_limit"`
	MaxTempLimit *float64 `json:"max_temp_limit"`

	ACConnection    bool `json:"ac_connection"`
	WiFiConnection  bool `json:"wifi_connection"`
	CloudConnection bool `json:"cloud_connection"`
	Error           bool `json:"error"`
	ErrorCode       int  `json:"error_code"`

	Available  bool      `json:"available"`
	Pending    int       `json:"pending"`
	LastError  string    `json:"last_error,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// NewStatePayload flattens a controller status
func NewStatePayload(s climate.Status) StatePayload {
	v := s.Climate
	p := StatePayload{
		HVACMode:           v.HVACMode,
		Power:              PayloadOn,
		TargetTemperature:  v.TargetTemperature,
		CurrentTemperature: v.CurrentTemperature,
		MinTemp:            v.MinTemperature,
		MaxTemp:            v.MaxTemperature,
		FanMode:            v.FanMode,
		SwingMode:          v.SwingMode,
		PresetMode:         v.PresetMode,
		HorizontalVane:     v.HorizontalVaneMode,
		HorizontalSwing:    v.HorizontalSwing,
		WiFiSignal:         v.Sensors.WiFiSignal,
		MinTempLimit:       v.Sensors.MinTempLimit,
		MaxTempLimit:       v.Sensors.MaxTempLimit,
		ACConnection:       v.BinarySensors.ACConnection,
		WiFiConnection:     v.BinarySensors.WiFiConnection,
		CloudConnection:    v.BinarySensors.CloudConnection,
		Error:              v.BinarySensors.Error,
		ErrorCode:          v.BinarySensors.ErrorCode,
		Available:          s.Available,
		Pending:            len(s.Pending),
		LastError:          s.LastError,
		LastUpdate:         s.LastUpdate,
	}
	if v.HVACMode == climate.HVACOff {
		p.Power = PayloadOff
	}
	return p
}

var unsafeTopicChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// TopicID turns a serial number into a topic segment
func TopicID(serial string) string {
	id := unsafeTopicChars.ReplaceAllString(serial, "_")
	if id == "" {
		return "unknown"
	}
	return id
}
