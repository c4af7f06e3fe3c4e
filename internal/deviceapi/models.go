package deviceapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// API commands understood by the adapter's /api.cgi endpoint
const (
	CmdLogin                  = "login"
	CmdGetInfo                = "getinfo"
	CmdGetAvailableDatapoints = "getavailabledatapoints"
	CmdGetDatapointValue      = "getdatapointvalue"
	CmdSetDatapointValue      = "setdatapointvalue"
)

// APIPath is the single endpoint every command is POSTed to
const APIPath = "/api.cgi"

// Error codes the device uses to signal a missing or expired session
var authErrorCodes = map[int]bool{1: true, 5: true}

// IsAuthErrorCode reports whether a device error code means the session was rejected
func IsAuthErrorCode(code int) bool {
	return authErrorCodes[code]
}

// UID identifies one datapoint on the device
type UID int

// Datapoint UIDs exposed by Intesis AC adapters
const (
	UIDPower          UID = 1
	UIDMode           UID = 2
	UIDFanSpeed       UID = 4
	UIDVaneVertical   UID = 5
	UIDVaneHorizontal UID = 6
	UIDSetpoint       UID = 9  // tenths of °C
	UIDCurrentTemp    UID = 10 // tenths of °C
	UIDQuietMode      UID = 12 // 0=off, 1=quiet, 2=powerful
	UIDTimer          UID = 13
	UIDFilterStatus   UID = 14
	UIDErrorCode      UID = 15
	UIDMinTemp        UID = 35 // tenths of °C
	UIDMaxTemp        UID = 36 // tenths of °C
)

// Default setpoint limits (tenths of °C) used when the device does not report them
const (
	DefaultMinTempTenths = 160
	DefaultMaxTempTenths = 300
)

var uidNames = map[UID]string{
	UIDPower:          "power",
	UIDMode:           "mode",
	UIDFanSpeed:       "fan_speed",
	UIDVaneVertical:   "vane_vertical",
	UIDVaneHorizontal: "vane_horizontal",
	UIDSetpoint:       "setpoint",
	UIDCurrentTemp:    "current_temperature",
	UIDQuietMode:      "quiet_mode",
	UIDTimer:          "timer",
	UIDFilterStatus:   "filter_status",
	UIDErrorCode:      "error_code",
	UIDMinTemp:        "min_temperature",
	UIDMaxTemp:        "max_temperature",
}

// writable datapoints; the rest are sensors or limits
var writableUIDs = map[UID]bool{
	UIDPower:          true,
	UIDMode:           true,
	UIDFanSpeed:       true,
	UIDVaneVertical:   true,
	UIDVaneHorizontal: true,
	UIDSetpoint:       true,
	UIDQuietMode:      true,
	UIDTimer:          true,
}

// Known reports whether the UID is part of the datapoint table
func (u UID) Known() bool {
	_, ok := uidNames[u]
	return ok
}

// Writable reports whether the datapoint accepts setdatapointvalue
func (u UID) Writable() bool {
	return writableUIDs[u]
}

// Name returns the datapoint's symbolic name, or "uid_N" when unknown
func (u UID) Name() string {
	if name, ok := uidNames[u]; ok {
		return name
	}
	return fmt.Sprintf("uid_%d", int(u))
}

// String implements fmt.Stringer
func (u UID) String() string {
	return fmt.Sprintf("%s(%d)", u.Name(), int(u))
}

// KnownUIDs returns all datapoints in the table, ascending
func KnownUIDs() []UID {
	uids := make([]UID, 0, len(uidNames))
	for uid := range uidNames {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// ParseUID accepts either a numeric UID or a datapoint name
func ParseUID(s string) (UID, error) {
	if n, err := strconv.Atoi(s); err == nil {
		uid := UID(n)
		if !uid.Known() {
			return 0, fmt.Errorf("unknown datapoint uid %d", n)
		}
		return uid, nil
	}
	for uid, name := range uidNames {
		if strings.EqualFold(name, s) {
			return uid, nil
		}
	}
	return 0, fmt.Errorf("unknown datapoint %q", s)
}

// DatapointValue is one {uid, value} pair as sent and received on the wire
type DatapointValue struct {
	UID   UID `json:"uid"`
	Value int `json:"value"`
}

// State maps datapoint UIDs to their values
type State map[UID]int

// Clone returns an independent copy of the state
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the value for uid, or def when absent
func (s State) Get(uid UID, def int) int {
	if v, ok := s[uid]; ok {
		return v
	}
	return def
}

// Values returns the state as a sorted list of datapoint values
func (s State) Values() []DatapointValue {
	out := make([]DatapointValue, 0, len(s))
	for uid, v := range s {
		out = append(out, DatapointValue{UID: uid, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// request is the envelope every command is sent in
type request struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data,omitempty"`
}

// response is the envelope every command is answered with
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type loginData struct {
	ID struct {
		SessionID string `json:"sessionID"`
	} `json:"id"`
}

type infoData struct {
	Info json.RawMessage `json:"info"`
}

type datapointData struct {
	DPVal []json.RawMessage `json:"dpval"`
}

// DeviceInfo is the static metadata returned by getinfo
type DeviceInfo struct {
	Model       string `json:"deviceModel"`
	SerialRaw   string `json:"sn"`
	FWVersion   string `json:"fwVersion"`
	WlanSTAMAC  string `json:"wlanSTAMAC"`
	WlanAPMAC   string `json:"wlanAPMAC"`
	RSSI        int    `json:"rssi"`
	ACStatus    int    `json:"acStatus"`
	WlanLink    int    `json:"wlanLNK"`
	TCPServer   int    `json:"tcpServerLNK"`
	LastError   int    `json:"lastError"`
	DeviceName  string `json:"ownSSID,omitempty"`
	WlanFWVer   string `json:"wlanFwVersion,omitempty"`
	LocalIP     string `json:"ip,omitempty"`
	ProductCode string `json:"productCode,omitempty"`

	// Raw holds every key the device returned, for diagnostics
	Raw map[string]any `json:"-"`
}

// Serial returns the serial number without the " / ..." suffix some firmwares append
func (d *DeviceInfo) Serial() string {
	if d == nil || d.SerialRaw == "" {
		return "unknown"
	}
	serial, _, _ := strings.Cut(d.SerialRaw, " / ")
	return strings.TrimSpace(serial)
}

// DisplayName returns "Intesis {model}"
func (d *DeviceInfo) DisplayName() string {
	if d == nil || d.Model == "" {
		return "Intesis AC"
	}
	return "Intesis " + d.Model
}

// ACConnected reports whether the adapter can talk to the indoor unit
func (d *DeviceInfo) ACConnected() bool { return d != nil && d.ACStatus == 1 }

// WiFiConnected reports whether the adapter is joined to a WiFi network
func (d *DeviceInfo) WiFiConnected() bool { return d != nil && d.WlanLink == 1 }

// CloudConnected reports whether the adapter is connected to the vendor cloud
func (d *DeviceInfo) CloudConnected() bool { return d != nil && d.TCPServer == 1 }

// parseDeviceInfo decodes the info object. Field types vary between firmware
// versions (numbers are sometimes sent as strings), so fields are read from
// the generic map rather than unmarshaled directly.
func parseDeviceInfo(raw json.RawMessage) (*DeviceInfo, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("info is null")
	}
	return &DeviceInfo{
		Model:       stringField(m, "deviceModel"),
		SerialRaw:   stringField(m, "sn"),
		FWVersion:   stringField(m, "fwVersion"),
		WlanSTAMAC:  stringField(m, "wlanSTAMAC"),
		WlanAPMAC:   stringField(m, "wlanAPMAC"),
		RSSI:        intField(m, "rssi"),
		ACStatus:    intField(m, "acStatus"),
		WlanLink:    intField(m, "wlanLNK"),
		TCPServer:   intField(m, "tcpServerLNK"),
		LastError:   intField(m, "lastError"),
		DeviceName:  stringField(m, "ownSSID"),
		WlanFWVer:   stringField(m, "wlanFwVersion"),
		LocalIP:     stringField(m, "ip"),
		ProductCode: stringField(m, "productCode"),
		Raw:         m,
	}, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}
