package mqtt

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
)

// Command names, the {command} part of {base}/{serial}/{command}/set
const (
	CmdMode           = "mode"
	CmdTemperature    = "temperature"
	CmdFanMode        = "fan_mode"
	CmdSwingMode      = "swing_mode"
	CmdPresetMode     = "preset_mode"
	CmdHorizontalVane = "horizontal_vane"
	CmdPower          = "power"
	CmdRefresh        = "refresh"
)

// ErrNotCommand is returned for topics that are not command topics
var ErrNotCommand = errors.New("not a command topic")

// Topics builds every topic the bridge uses
type Topics struct {
	base      string
	discovery string
	command   *regexp.Regexp
}

// NewTopics creates the topic layout for a base topic and discovery prefix
func NewTopics(base, discoveryPrefix string) Topics {
	return Topics{
		base:      base,
		discovery: discoveryPrefix,
		command:   commandExtractor(base),
	}
}

// Base returns the base topic
func (t Topics) Base() string { return t.base }

// BridgeState is where the bridge publishes online/offline; also the LWT topic
func (t Topics) BridgeState() string {
	return bridgeStateTopic(t.base)
}

// DeviceState carries the JSON state of one device
func (t Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/%s/state", t.base, serial)
}

// DeviceAvailability carries online/offline for one device
func (t Topics) DeviceAvailability(serial string) string {
	return fmt.Sprintf("%s/%s/availability", t.base, serial)
}

// Command is where a command for one device is received
func (t Topics) Command(serial, command string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.base, serial, command)
}

// CommandFilter subscribes to every device command
func (t Topics) CommandFilter() string {
	return fmt.Sprintf("%s/+/+/set", t.base)
}

// Discovery is the Home Assistant discovery config topic of one entity
func (t Topics) Discovery(component, serial, object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.discovery, component, serial, object)
}

// ParsedCommand is a command received over MQTT
type ParsedCommand struct {
	Serial  string
	Command string
	Payload string
}

// ParseCommand extracts the device serial and command name from a topic
func (t Topics) ParseCommand(topic string, payload []byte) (*ParsedCommand, error) {
	matches := t.command.FindStringSubmatch(topic)
	if len(matches) != 3 {
		return nil, fmt.Errorf("%w: %s", ErrNotCommand, topic)
	}
	return &ParsedCommand{
		Serial:  matches[1],
		Command: matches[2],
		Payload: string(payload),
	}, nil
}

func commandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/([A-Za-z0-9_-]+)/([a-z_]+)/set$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
