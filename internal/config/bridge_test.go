package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCheckMQTTTopic(t *testing.T) {
	tests := []struct {
		topic   string
		want    string
		wantErr bool
	}{
		{"intesis", "intesis", false},
		{"Intesis_AC", "intesis_ac", false},
		{"home/ac", "", true},
		{"", "", true},
		{"a c", "", true},
	}
	for _, tt := range tests {
		got, err := CheckMQTTTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckMQTTTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CheckMQTTTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestLoadBridgeConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("INTESIS_DEVICE_HOST", "192.168.1.50")
	t.Setenv("INTESIS_DEVICE_PASSWORD", "secret")
	t.Setenv("INTESIS_DEVICE_SCAN_INTERVAL", "10s")
	t.Setenv("INTESIS_MQTT_BASE_TOPIC", "Living_Room")
	t.Setenv("INTESIS_HTTP_LISTEN", ":9090")

	cfg, err := LoadBridgeConfig(NewBridgeViper(), "")
	if err != nil {
		t.Fatalf("LoadBridgeConfig() error = %v", err)
	}

	if len(cfg.Devices) != 1 {
		t.Fatalf("len(Devices) = %d, want 1", len(cfg.Devices))
	}
	d := cfg.Devices[0]
	if d.Host != "192.168.1.50" {
		t.Errorf("Host = %v, want 192.168.1.50", d.Host)
	}
	if d.Password != "secret" {
		t.Errorf("Password = %v, want secret", d.Password)
	}
	if d.Username != "admin" {
		t.Errorf("Username = %v, want admin", d.Username)
	}
	if d.ScanInterval != 10*time.Second {
		t.Errorf("ScanInterval = %v, want 10s", d.ScanInterval)
	}
	if d.SettleDelay != 2*time.Second {
		t.Errorf("SettleDelay = %v, want 2s", d.SettleDelay)
	}
	if cfg.MQTT.BaseTopic != "living_room" {
		t.Errorf("MQTT.BaseTopic = %v, want living_room", cfg.MQTT.BaseTopic)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("MQTT.DiscoveryPrefix = %v, want homeassistant", cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.HTTP.Listen != ":9090" {
		t.Errorf("HTTP.Listen = %v, want :9090", cfg.HTTP.Listen)
	}
}

func TestLoadBridgeConfigFromFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `log:
  level: debug
devices:
  - host: 10.0.0.5
    name: Bedroom
    temp_step: 1.0
  - host: 10.0.0.6
    password: other
    max_attempts: 4
mqtt:
  broker: tcp://broker:1883
  username: bridge
  password: hunter2
http:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadBridgeConfig(NewBridgeViper(), path)
	if err != nil {
		t.Fatalf("LoadBridgeConfig() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %v, want debug", cfg.Log.Level)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].TempStep != 1.0 {
		t.Errorf("Devices[0].TempStep = %v, want 1.0", cfg.Devices[0].TempStep)
	}
	if cfg.Devices[0].Password != "admin" {
		t.Errorf("Devices[0].Password = %v, want the default", cfg.Devices[0].Password)
	}
	if cfg.Devices[1].MaxAttempts != 4 {
		t.Errorf("Devices[1].MaxAttempts = %v, want 4", cfg.Devices[1].MaxAttempts)
	}
	if cfg.Devices[1].Port != 80 {
		t.Errorf("Devices[1].Port = %v, want 80", cfg.Devices[1].Port)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT.Broker = %v, want tcp://broker:1883", cfg.MQTT.Broker)
	}
	if cfg.HTTP.Enabled {
		t.Error("HTTP.Enabled = true, want false")
	}
}

func TestLoadBridgeConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no device", nil, "no device configured"},
		{"bad scan interval", map[string]string{
			"INTESIS_DEVICE_HOST":          "10.0.0.5",
			"INTESIS_DEVICE_SCAN_INTERVAL": "1s",
		}, "scan interval"},
		{"bad temp step", map[string]string{
			"INTESIS_DEVICE_HOST":      "10.0.0.5",
			"INTESIS_DEVICE_TEMP_STEP": "0.3",
		}, "temperature step"},
		{"bad topic", map[string]string{
			"INTESIS_DEVICE_HOST":     "10.0.0.5",
			"INTESIS_MQTT_BASE_TOPIC": "a/b",
		}, "mqtt.base_topic"},
		{"nothing to serve", map[string]string{
			"INTESIS_DEVICE_HOST":  "10.0.0.5",
			"INTESIS_MQTT_ENABLED": "false",
			"INTESIS_HTTP_ENABLED": "false",
		}, "nothing to serve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadBridgeConfig(NewBridgeViper(), "")
			if err == nil {
				t.Fatal("LoadBridgeConfig() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadBridgeConfig() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadBridgeConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadBridgeConfig(NewBridgeViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("LoadBridgeConfig() should fail for a missing --config file")
	}
}

func TestBridgeConfigRedacted(t *testing.T) {
	cfg := BridgeConfig{
		Devices: []BridgeDevice{{Host: "10.0.0.5", Password: "secret"}},
		MQTT:    MQTTConfig{Username: "bridge", Password: "hunter2"},
	}

	safe := cfg.Redacted()
	if safe.Devices[0].Password != redacted {
		t.Errorf("device password = %v, want redacted", safe.Devices[0].Password)
	}
	if safe.MQTT.Password != redacted || safe.MQTT.Username != redacted {
		t.Errorf("mqtt credentials = %v/%v, want redacted", safe.MQTT.Username, safe.MQTT.Password)
	}
	if cfg.Devices[0].Password != "secret" {
		t.Error("Redacted() must not modify the original")
	}
}
