package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/deviceapi"
)

// EnvPrefix prefixes every bridge environment variable (INTESIS_MQTT_BROKER, ...)
const EnvPrefix = "intesis"

// ConfigFileEnvVar names an optional YAML config file
const ConfigFileEnvVar = "CONFIG_FILE"

const redacted = "*redacted*"

// BridgeConfig is the configuration of intesis-bridge
type BridgeConfig struct {
	Log     LogConfig      `mapstructure:"log" yaml:"log"`
	Device  BridgeDevice   `mapstructure:"device" yaml:"-"`
	Devices []BridgeDevice `mapstructure:"devices" yaml:"devices"`
	MQTT    MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	HTTP    HTTPConfig     `mapstructure:"http" yaml:"http"`
}

// LogConfig selects the log level and encoder
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// BridgeDevice is one adapter served by the bridge
type BridgeDevice struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Name         string        `mapstructure:"name" yaml:"name"`
	ScanInterval time.Duration `mapstructure:"scan_interval" yaml:"scan_interval"`
	TempStep     float64       `mapstructure:"temp_step" yaml:"temp_step"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Credentials returns the login credentials of the device
func (d BridgeDevice) Credentials() deviceapi.Credentials {
	return deviceapi.Credentials{Host: d.Host, Username: d.Username, Password: d.Password}
}

// ClimateOptions returns the controller options of the device
func (d BridgeDevice) ClimateOptions() climate.Options {
	return (&DeviceOptions{
		ScanInterval: d.ScanInterval,
		TempStep:     d.TempStep,
		SettleDelay:  d.SettleDelay,
		MaxAttempts:  d.MaxAttempts,
	}).ClimateOptions()
}

// MQTTConfig configures the MQTT bridge
type MQTTConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker           string `mapstructure:"broker" yaml:"broker"`
	ClientID         string `mapstructure:"client_id" yaml:"client_id"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"password"`
	BaseTopic        string `mapstructure:"base_topic" yaml:"base_topic"`
	DiscoveryEnabled bool   `mapstructure:"discovery_enabled" yaml:"discovery_enabled"`
	DiscoveryPrefix  string `mapstructure:"discovery_prefix" yaml:"discovery_prefix"`
	QoS              byte   `mapstructure:"qos" yaml:"qos"`
	Retain           bool   `mapstructure:"retain" yaml:"retain"`
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Log     bool   `mapstructure:"log" yaml:"log"`
}

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

// CheckMQTTTopic lowercases a topic segment and checks it only holds
// letters, digits and underscores.
func CheckMQTTTopic(topic string) (string, error) {
	lower := strings.ToLower(topic)
	if !topicRegexp.MatchString(lower) {
		return "", fmt.Errorf("invalid topic %q: can only contain letters, numbers and underscores", topic)
	}
	return lower, nil
}

// SetBridgeDefaults registers a default for every key. Keys without a default
// are not picked up from the environment by viper.
func SetBridgeDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("device.host", "")
	v.SetDefault("device.port", deviceapi.DefaultPort)
	v.SetDefault("device.username", deviceapi.DefaultUsername)
	v.SetDefault("device.password", deviceapi.DefaultPassword)
	v.SetDefault("device.name", "")
	v.SetDefault("device.scan_interval", climate.DefaultScanInterval)
	v.SetDefault("device.temp_step", climate.DefaultTempStep)
	v.SetDefault("device.settle_delay", climate.DefaultOptions().SettleDelay)
	v.SetDefault("device.max_attempts", climate.DefaultOptions().MaxAttempts)
	v.SetDefault("device.timeout", deviceapi.DefaultTimeout)

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "intesis")
	v.SetDefault("mqtt.discovery_enabled", true)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.log", false)
}

// NewBridgeViper returns a viper instance reading INTESIS_* variables
func NewBridgeViper() *viper.Viper {
	v := viper.New()
	SetBridgeDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadBridgeConfig reads the bridge configuration. cfgFile, when empty,
// falls back to $CONFIG_FILE; a missing file there is ignored.
func LoadBridgeConfig(v *viper.Viper, cfgFile string) (*BridgeConfig, error) {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = os.Getenv(ConfigFileEnvVar)
	}

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
			}
		} else if explicit {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
	}

	var cfg BridgeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.normalize(v); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize merges the single device shortcut into the list, fills per-device
// defaults and validates everything.
func (c *BridgeConfig) normalize(v *viper.Viper) error {
	if c.Device.Host != "" {
		c.Devices = append([]BridgeDevice{c.Device}, c.Devices...)
	}
	if len(c.Devices) == 0 {
		return errors.New("no device configured: set device.host (INTESIS_DEVICE_HOST) or a devices list")
	}

	var errs []error
	seen := make(map[string]bool)
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Host == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: host is required", i))
			continue
		}
		if seen[d.Host] {
			errs = append(errs, fmt.Errorf("devices[%d]: host %s listed twice", i, d.Host))
		}
		seen[d.Host] = true

		if d.Port == 0 {
			d.Port = v.GetInt("device.port")
		}
		if d.Username == "" {
			d.Username = v.GetString("device.username")
		}
		if d.Password == "" {
			d.Password = v.GetString("device.password")
		}
		if d.Timeout == 0 {
			d.Timeout = v.GetDuration("device.timeout")
		}
		if d.ScanInterval == 0 {
			d.ScanInterval = v.GetDuration("device.scan_interval")
		}
		if d.TempStep == 0 {
			d.TempStep = v.GetFloat64("device.temp_step")
		}
		if d.SettleDelay == 0 {
			d.SettleDelay = v.GetDuration("device.settle_delay")
		}
		if d.MaxAttempts == 0 {
			d.MaxAttempts = v.GetInt("device.max_attempts")
		}
		if err := d.ClimateOptions().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d] (%s): %w", i, d.Host, err))
		}
	}

	if c.MQTT.Enabled {
		base, err := CheckMQTTTopic(c.MQTT.BaseTopic)
		if err != nil {
			errs = append(errs, fmt.Errorf("mqtt.base_topic: %w", err))
		}
		c.MQTT.BaseTopic = base

		prefix, err := CheckMQTTTopic(c.MQTT.DiscoveryPrefix)
		if err != nil {
			errs = append(errs, fmt.Errorf("mqtt.discovery_prefix: %w", err))
		}
		c.MQTT.DiscoveryPrefix = prefix

		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
	}

	if !c.MQTT.Enabled && !c.HTTP.Enabled {
		errs = append(errs, errors.New("both mqtt and http are disabled, nothing to serve"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe for printing
func (c BridgeConfig) Redacted() BridgeConfig {
	out := c
	if out.MQTT.Username != "" {
		out.MQTT.Username = redacted
	}
	if out.MQTT.Password != "" {
		out.MQTT.Password = redacted
	}
	out.Device.Password = redacted
	out.Devices = make([]BridgeDevice, len(c.Devices))
	for i, d := range c.Devices {
		d.Password = redacted
		out.Devices[i] = d
	}
	return out
}

// LogSafe logs the configuration with credentials redacted
func (c BridgeConfig) LogSafe(logger *zap.Logger) {
	safe := c.Redacted()
	hosts := make([]string, len(safe.Devices))
	for i, d := range safe.Devices {
		hosts[i] = d.Host
	}
	logger.Info("Using config",
		zap.Strings("devices", hosts),
		zap.Bool("mqtt", safe.MQTT.Enabled),
		zap.String("mqtt_broker", safe.MQTT.Broker),
		zap.String("mqtt_base_topic", safe.MQTT.BaseTopic),
		zap.String("mqtt_username", safe.MQTT.Username),
		zap.Bool("http", safe.HTTP.Enabled),
		zap.String("http_listen", safe.HTTP.Listen),
	)
}
