// Package config holds the two kinds of configuration used by the commands.
//
// The device registry is a YAML file used by intesis-cfg to remember adapters
// it has talked to: host, nickname, model, firmware and per-device options,
// keyed by serial number. It follows OS-specific conventions for its location:
//   - Linux: $XDG_CONFIG_HOME/intesis/devices.yaml or $HOME/.config/intesis/devices.yaml
//   - macOS: $HOME/.config/intesis/devices.yaml
//   - Windows: %LOCALAPPDATA%\intesis\devices.yaml
//
// Device passwords are never written to the registry.
//
// The bridge configuration is read by intesis-bridge through viper from
// INTESIS_* environment variables and an optional YAML file:
//
//	v := config.NewBridgeViper()
//	cfg, err := config.LoadBridgeConfig(v, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.LogSafe(logger)
//
// Nested keys map to variables by replacing dots with underscores, so
// mqtt.base_topic is INTESIS_MQTT_BASE_TOPIC. A single device can be given
// with INTESIS_DEVICE_HOST and friends; several need a devices list in the file.
package config
