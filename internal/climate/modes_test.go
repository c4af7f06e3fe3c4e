package climate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/muurk/intesis/internal/deviceapi"
)

func TestHVACModeName(t *testing.T) {
	tests := []struct {
		power, mode int
		want        string
	}{
		{0, 1, HVACOff},
		{0, 2, HVACOff},
		{1, 0, HVACAuto},
		{1, 1, HVACCool},
		{1, 2, HVACHeat},
		{1, 3, HVACDry},
		{1, 4, HVACFanOnly},
		{1, 9, HVACAuto},
	}

	for _, tt := range tests {
		if got := HVACModeName(tt.power, tt.mode); got != tt.want {
			t.Errorf("HVACModeName(%d, %d) = %s, want %s", tt.power, tt.mode, got, tt.want)
		}
	}
}

func TestHVACModes(t *testing.T) {
	want := []string{"off", "auto", "cool", "heat", "dry", "fan_only"}
	if got := HVACModes(); !reflect.DeepEqual(got, want) {
		t.Errorf("HVACModes() = %v, want %v", got, want)
	}
}

func TestTables(t *testing.T) {
	tests := []struct {
		table *Table
		name  string
		value int
	}{
		{FanTable, "auto", 0},
		{FanTable, "medium_low", 2},
		{FanTable, "highest", 6},
		{SwingTable, "position_1", 0},
		{SwingTable, "position_5", 4},
		{SwingTable, "on", 10},
		{HorizontalVaneTable, "position_6", 5},
		{HorizontalVaneTable, "on", 10},
		{PresetTable, "none", 0},
		{PresetTable, "eco", 1},
		{PresetTable, "boost", 2},
	}

	for _, tt := range tests {
		v, err := tt.table.Value(tt.name)
		if err != nil || v != tt.value {
			t.Errorf("%s.Value(%q) = %d, %v, want %d", tt.table.kind, tt.name, v, err, tt.value)
		}
		name, ok := tt.table.Name(tt.value)
		if !ok || name != tt.name {
			t.Errorf("%s.Name(%d) = %q, %v, want %q", tt.table.kind, tt.value, name, ok, tt.name)
		}
	}
}

func TestTableValueIsCaseInsensitive(t *testing.T) {
	v, err := FanTable.Value(" High ")
	if err != nil || v != 5 {
		t.Errorf("Value(\" High \") = %d, %v, want 5", v, err)
	}
}

func TestTableUnknownName(t *testing.T) {
	_, err := SwingTable.Value("position_6")
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Value() error = %v, want ErrInvalidMode", err)
	}
	if _, ok := SwingTable.Name(5); ok {
		t.Error("Name(5) should be unknown for the vertical vane")
	}
}

func TestTemperatureConversion(t *testing.T) {
	if got := TenthsToCelsius(225); got != 22.5 {
		t.Errorf("TenthsToCelsius(225) = %v, want 22.5", got)
	}

	tests := []struct {
		celsius float64
		step    float64
		want    int
	}{
		{22.3, 0.5, 225},
		{22.2, 0.5, 220},
		{22.3, 1.0, 220},
		{22.6, 1.0, 230},
		{21.0, 0.5, 210},
		{19.99, 0, 200},
	}

	for _, tt := range tests {
		if got := CelsiusToTenths(QuantizeTemperature(tt.celsius, tt.step)); got != tt.want {
			t.Errorf("quantize(%v, %v) = %d, want %d", tt.celsius, tt.step, got, tt.want)
		}
	}
}

func TestLimits(t *testing.T) {
	tests := []struct {
		name     string
		state    deviceapi.State
		min, max int
	}{
		{"reported", deviceapi.State{deviceapi.UIDMinTemp: 180, deviceapi.UIDMaxTemp: 280}, 180, 280},
		{"missing", deviceapi.State{}, 160, 300},
		{"zero", deviceapi.State{deviceapi.UIDMinTemp: 0, deviceapi.UIDMaxTemp: 0}, 160, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := Limits(tt.state)
			if lo != tt.min || hi != tt.max {
				t.Errorf("Limits() = %d, %d, want %d, %d", lo, hi, tt.min, tt.max)
			}
		})
	}
}

func TestClampTenths(t *testing.T) {
	if got := ClampTenths(100, 160, 300); got != 160 {
		t.Errorf("ClampTenths(100) = %d, want 160", got)
	}
	if got := ClampTenths(350, 160, 300); got != 300 {
		t.Errorf("ClampTenths(350) = %d, want 300", got)
	}
	if got := ClampTenths(215, 160, 300); got != 215 {
		t.Errorf("ClampTenths(215) = %d, want 215", got)
	}
}

func TestValidTempStep(t *testing.T) {
	if !ValidTempStep(0.5) || !ValidTempStep(1.0) {
		t.Error("0.5 and 1.0 should be valid")
	}
	if ValidTempStep(0.1) {
		t.Error("0.1 should be invalid")
	}
}
