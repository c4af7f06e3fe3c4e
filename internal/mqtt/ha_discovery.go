package mqtt

import (
	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/version"
)

const manufacturer = "Intesis"

// HADiscoveryConfig is the discovery payload of a sensor, binary sensor or select
type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	ValueTemplate     string            `json:"value_template,omitempty"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	Availability      []HAAvailability  `json:"availability,omitempty"`
	AvailabilityMode  string            `json:"availability_mode,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
	Options           []string          `json:"options,omitempty"`
}

// HAClimateConfig is the discovery payload of the climate entity
type HAClimateConfig struct {
	Device           HADiscoveryDevice `json:"device"`
	Name             *string           `json:"name"`
	UniqueId         string            `json:"unique_id"`
	Platform         string            `json:"platform"`
	Availability     []HAAvailability  `json:"availability"`
	AvailabilityMode string            `json:"availability_mode"`

	ModeCommandTopic  string   `json:"mode_command_topic"`
	ModeStateTopic    string   `json:"mode_state_topic"`
	ModeStateTemplate string   `json:"mode_state_template"`
	Modes             []string `json:"modes"`

	PowerCommandTopic string `json:"power_command_topic"`
	PayloadOn         string `json:"payload_on"`
	PayloadOff        string `json:"payload_off"`

	TemperatureCommandTopic    string `json:"temperature_command_topic"`
	TemperatureStateTopic      string `json:"temperature_state_topic"`
	TemperatureStateTemplate   string `json:"temperature_state_template"`
	CurrentTemperatureTopic    string `json:"current_temperature_topic"`
	CurrentTemperatureTemplate string `json:"current_temperature_template"`

	FanModeCommandTopic  string   `json:"fan_mode_command_topic"`
	FanModeStateTopic    string   `json:"fan_mode_state_topic"`
	FanModeStateTemplate string   `json:"fan_mode_state_template"`
	FanModes             []string `json:"fan_modes"`

	SwingModeCommandTopic  string   `json:"swing_mode_command_topic"`
	SwingModeStateTopic    string   `json:"swing_mode_state_topic"`
	SwingModeStateTemplate string   `json:"swing_mode_state_template"`
	SwingModes             []string `json:"swing_modes"`

	PresetModeCommandTopic  string   `json:"preset_mode_command_topic"`
	PresetModeStateTopic    string   `json:"preset_mode_state_topic"`
	PresetModeValueTemplate string   `json:"preset_mode_value_template"`
	PresetModes             []string `json:"preset_modes"`

	MinTemp         float64 `json:"min_temp"`
	MaxTemp         float64 `json:"max_temp"`
	TempStep        float64 `json:"temp_step"`
	Precision       float64 `json:"precision"`
	TemperatureUnit string  `json:"temperature_unit"`
}

// HADiscoveryDevice groups the entities of one adapter
type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// HAAvailability is one entry of an availability list
type HAAvailability struct {
	Topic string `json:"topic"`
}

// DiscoveryMessage is one retained discovery config to publish
type DiscoveryMessage struct {
	Topic   string
	Payload any
}

func deviceOf(id string, status climate.Status) HADiscoveryDevice {
	dev := HADiscoveryDevice{
		Id:           []string{"intesis_" + id},
		Manufacturer: manufacturer,
		Name:         status.Name,
		ViaDevice:    "intesis_bridge",
	}
	if info := status.DeviceInfo; info != nil {
		dev.Model = info.Model
		dev.Version = info.FWVersion
	}
	return dev
}

func (t Topics) availability(id string) []HAAvailability {
	return []HAAvailability{
		{Topic: t.BridgeState()},
		{Topic: t.DeviceAvailability(id)},
	}
}

// jsonTemplate renders one key of the state JSON
func jsonTemplate(key string) string {
	return "{{ value_json." + key + " }}"
}

// onOffTemplate renders a boolean key of the state JSON as ON/OFF
func onOffTemplate(key string) string {
	return "{{ 'ON' if value_json." + key + " else 'OFF' }}"
}

// ClimateDiscovery returns the climate entity config of one device
func (t Topics) ClimateDiscovery(id string, status climate.Status, tempStep float64) DiscoveryMessage {
	view := status.Climate
	stateTopic := t.DeviceState(id)

	presets := make([]string, 0, len(view.PresetModes))
	for _, p := range view.PresetModes {
		if p != climate.PresetNone {
			presets = append(presets, p)
		}
	}

	cfg := HAClimateConfig{
		Device:           deviceOf(id, status),
		UniqueId:         "intesis_" + id + "_climate",
		Platform:         "mqtt",
		Availability:     t.availability(id),
		AvailabilityMode: "all",

		ModeCommandTopic:  t.Command(id, CmdMode),
		ModeStateTopic:    stateTopic,
		ModeStateTemplate: jsonTemplate("hvac_mode"),
		Modes:             view.HVACModes,

		PowerCommandTopic: t.Command(id, CmdPower),
		PayloadOn:         PayloadOn,
		PayloadOff:        PayloadOff,

		TemperatureCommandTopic:    t.Command(id, CmdTemperature),
		TemperatureStateTopic:      stateTopic,
		TemperatureStateTemplate:   jsonTemplate("target_temperature"),
		CurrentTemperatureTopic:    stateTopic,
		CurrentTemperatureTemplate: jsonTemplate("current_temperature"),

		FanModeCommandTopic:  t.Command(id, CmdFanMode),
		FanModeStateTopic:    stateTopic,
		FanModeStateTemplate: jsonTemplate("fan_mode"),
		FanModes:             view.FanModes,

		SwingModeCommandTopic:  t.Command(id, CmdSwingMode),
		SwingModeStateTopic:    stateTopic,
		SwingModeStateTemplate: jsonTemplate("swing_mode"),
		SwingModes:             view.SwingModes,

		PresetModeCommandTopic:  t.Command(id, CmdPresetMode),
		PresetModeStateTopic:    stateTopic,
		PresetModeValueTemplate: jsonTemplate("preset_mode"),
		PresetModes:             presets,

		MinTemp:         view.MinTemperature,
		MaxTemp:         view.MaxTemperature,
		TempStep:        tempStep,
		Precision:       0.1,
		TemperatureUnit: "C",
	}
	return DiscoveryMessage{Topic: t.Discovery("climate", id, "climate"), Payload: cfg}
}

type entity struct {
	component      string
	object         string
	name           string
	template       string
	deviceClass    string
	stateClass     string
	unit           string
	entityCategory string
	icon           string
	disabled       bool
}

var entities = []entity{
	{component: "sensor", object: "current_temperature", name: "Current temperature",
		template: jsonTemplate("current_temperature"), deviceClass: "temperature", stateClass: "measurement", unit: "°C"},
	{component: "sensor", object: "wifi_signal", name: "WiFi signal",
		template: jsonTemplate("wifi_signal"), deviceClass: "signal_strength", stateClass: "measurement", unit: "dBm",
		entityCategory: "diagnostic"},
	{component: "sensor", object: "min_temp_limit", name: "Minimum setpoint",
		template: jsonTemplate("min_temp_limit"), deviceClass: "temperature", unit: "°C",
		entityCategory: "diagnostic", disabled: true},
	{component: "sensor", object: "max_temp_limit", name: "Maximum setpoint",
		template: jsonTemplate("max_temp_limit"), deviceClass: "temperature", unit: "°C",
		entityCategory: "diagnostic", disabled: true},
	{component: "sensor", object: "error_code", name: "Error code",
		template: jsonTemplate("error_code"), entityCategory: "diagnostic", icon: "mdi:alert-circle-outline"},
	{component: "binary_sensor", object: "ac_connection", name: "AC connection",
		template: onOffTemplate("ac_connection"), deviceClass: "connectivity", entityCategory: "diagnostic"},
	{component: "binary_sensor", object: "wifi_connection", name: "WiFi connection",
		template: onOffTemplate("wifi_connection"), deviceClass: "connectivity", entityCategory: "diagnostic"},
	{component: "binary_sensor", object: "cloud_connection", name: "Cloud connection",
		template: onOffTemplate("cloud_connection"), deviceClass: "connectivity", entityCategory: "diagnostic",
		disabled: true},
	{component: "binary_sensor", object: "error", name: "Error",
		template: onOffTemplate("error"), deviceClass: "problem", entityCategory: "diagnostic"},
}

// EntityDiscovery returns the sensor, binary sensor and select configs of one device
func (t Topics) EntityDiscovery(id string, status climate.Status) []DiscoveryMessage {
	dev := deviceOf(id, status)
	out := make([]DiscoveryMessage, 0, len(entities)+1)

	for _, e := range entities {
		cfg := HADiscoveryConfig{
			Device:            dev,
			StateTopic:        t.DeviceState(id),
			ValueTemplate:     e.template,
			StateClass:        e.stateClass,
			DeviceClass:       e.deviceClass,
			UnitOfMeasurement: e.unit,
			Availability:      t.availability(id),
			AvailabilityMode:  "all",
			EntityCategory:    e.entityCategory,
			Name:              e.name,
			UniqueId:          "intesis_" + id + "_" + e.object,
			Platform:          "mqtt",
			Icon:              e.icon,
		}
		if e.component == "binary_sensor" {
			cfg.PayloadOn = PayloadOn
			cfg.PayloadOff = PayloadOff
		}
		if e.disabled {
			enabled := false
			cfg.EnabledByDefault = &enabled
		}
		out = append(out, DiscoveryMessage{Topic: t.Discovery(e.component, id, e.object), Payload: cfg})
	}

	out = append(out, DiscoveryMessage{
		Topic: t.Discovery("select", id, "horizontal_vane"),
		Payload: HADiscoveryConfig{
			Device:           dev,
			StateTopic:       t.DeviceState(id),
			ValueTemplate:    jsonTemplate("horizontal_vane"),
			CommandTopic:     t.Command(id, CmdHorizontalVane),
			Availability:     t.availability(id),
			AvailabilityMode: "all",
			Name:             "Horizontal vane",
			UniqueId:         "intesis_" + id + "_horizontal_vane",
			Platform:         "mqtt",
			Icon:             "mdi:arrow-left-right",
			Options:          climate.HorizontalVaneTable.Names(),
		},
	})
	return out
}

// BridgeDiscovery returns the connectivity sensor of the bridge itself
func (t Topics) BridgeDiscovery() DiscoveryMessage {
	return DiscoveryMessage{
		Topic: t.Discovery("binary_sensor", "intesis_bridge", "connection_state"),
		Payload: HADiscoveryConfig{
			Device: HADiscoveryDevice{
				Id:           []string{"intesis_bridge"},
				Manufacturer: manufacturer,
				Name:         "Intesis Bridge",
				Model:        "intesis-bridge",
				Version:      version.Short(),
			},
			StateTopic:     t.BridgeState(),
			DeviceClass:    "connectivity",
			EntityCategory: "diagnostic",
			Name:           "Connection state",
			UniqueId:       "intesis_bridge_connection_state",
			Platform:       "mqtt",
			PayloadOn:      PayloadOnline,
			PayloadOff:     PayloadOffline,
		},
	}
}
