package main

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/muurk/intesis/internal/deviceapi"
)

type recordingController struct {
	calls []string
}

func (r *recordingController) record(format string, args ...any) error {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return nil
}

func (r *recordingController) SetHVACMode(mode string) error  { return r.record("mode %s", mode) }
func (r *recordingController) SetTemperature(c float64) error { return r.record("temp %.1f", c) }
func (r *recordingController) SetFanMode(mode string) error   { return r.record("fan %s", mode) }
func (r *recordingController) SetSwingMode(mode string) error { return r.record("swing %s", mode) }
func (r *recordingController) SetHorizontalVane(mode string) error {
	return r.record("hvane %s", mode)
}
func (r *recordingController) SetPresetMode(mode string) error { return r.record("preset %s", mode) }
func (r *recordingController) TurnOn() error                   { return r.record("on") }
func (r *recordingController) TurnOff() error                  { return r.record("off") }
func (r *recordingController) SetDatapoint(uid deviceapi.UID, value int) error {
	return r.record("dp %d=%d", int(uid), value)
}

func TestParseSettings(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []setting
		wantErr bool
	}{
		{"pairs", []string{"mode", "heat", "temp", "22"}, []setting{{"mode", "heat"}, {"temp", "22"}}, false},
		{"equals", []string{"fan=low"}, []setting{{"fan", "low"}}, false},
		{"mixed", []string{"fan=low", "power", "on"}, []setting{{"fan", "low"}, {"power", "on"}}, false},
		{"dangling key", []string{"mode"}, nil, true},
		{"empty", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSettings(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSettings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplySetting(t *testing.T) {
	tests := []struct {
		name    string
		in      setting
		want    string
		wantErr bool
	}{
		{"mode", setting{"mode", "cool"}, "mode cool", false},
		{"temperature", setting{"temperature", "21.5"}, "temp 21.5", false},
		{"bad temperature", setting{"temp", "warm"}, "", true},
		{"fan", setting{"FAN", "high"}, "fan high", false},
		{"swing", setting{"swing", "on"}, "swing on", false},
		{"horizontal vane", setting{"hvane", "position_2"}, "hvane position_2", false},
		{"preset", setting{"preset", "eco"}, "preset eco", false},
		{"power on", setting{"power", "ON"}, "on", false},
		{"power off", setting{"power", "0"}, "off", false},
		{"bad power", setting{"power", "maybe"}, "", true},
		{"datapoint by uid", setting{"9", "230"}, "dp 9=230", false},
		{"datapoint by name", setting{"quiet_mode", "1"}, "dp 12=1", false},
		{"datapoint not a number", setting{"9", "hot"}, "", true},
		{"unknown", setting{"colour", "red"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &recordingController{}
			err := applySetting(rc, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applySetting() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if len(rc.calls) != 0 {
					t.Errorf("calls = %v, want none", rc.calls)
				}
				return
			}
			if len(rc.calls) != 1 || rc.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", rc.calls, tt.want)
			}
		})
	}
}
