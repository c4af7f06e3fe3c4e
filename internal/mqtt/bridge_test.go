package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/clock"
	"github.com/muurk/intesis/internal/config"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/deviceapi/devicetest"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeConn struct {
	mu            sync.Mutex
	published     []published
	subscriptions []string
}

func (f *fakeConn) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case []byte:
		s = string(p)
	case string:
		s = p
	}
	f.published = append(f.published, published{topic: topic, retained: retained, payload: s})
	return doneToken{}
}

func (f *fakeConn) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, topic)
	return doneToken{}
}

// last returns the most recent payload published on topic
func (f *fakeConn) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].topic == topic {
			return f.published[i], true
		}
	}
	return published{}, false
}

func (f *fakeConn) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.published {
		if strings.HasPrefix(p.topic, prefix) {
			n++
		}
	}
	return n
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:          true,
		Broker:           "tcp://localhost:1883",
		BaseTopic:        "intesis",
		DiscoveryEnabled: true,
		DiscoveryPrefix:  "homeassistant",
		QoS:              1,
		Retain:           true,
	}
}

func newTestBridge(t *testing.T) (*Bridge, *fakeConn, *climate.Controller, *devicetest.Server) {
	t.Helper()
	dev := devicetest.NewServer()
	t.Cleanup(dev.Close)

	client := deviceapi.NewClient(
		deviceapi.Credentials{Host: "intesis.test", Username: "admin", Password: "admin"},
		deviceapi.WithBaseURL(dev.URL),
		deviceapi.WithRateLimit(rate.Inf, 1),
	)
	opts := climate.DefaultOptions()
	opts.Clock = clock.NewMock(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC))
	opts.Logger = zap.NewNop()
	c := climate.NewController(client, opts)
	t.Cleanup(c.Close)
	require.NoError(t, c.Refresh(context.Background()))

	conn := &fakeConn{}
	b := newBridge(testMQTTConfig(), []*climate.Controller{c}, zap.NewNop())
	b.conn = conn
	t.Cleanup(b.Stop)
	return b, conn, c, dev
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, what)
}

func TestOptsFromConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := testMQTTConfig()
	cfg.Username = "bridge"
	cfg.Password = "secret"
	opts := OptsFromConfig(cfg)

	assert.Len(opts.Servers, 1)
	assert.Equal("localhost:1883", opts.Servers[0].Host)
	assert.True(strings.HasPrefix(opts.ClientID, "intesis_"))
	assert.Equal("bridge", opts.Username)
	assert.True(opts.WillEnabled)
	assert.True(opts.WillRetained)
	assert.Equal("intesis/bridge/state", opts.WillTopic)
	assert.Equal(PayloadOffline, string(opts.WillPayload))

	cfg.ClientID = "fixed"
	assert.Equal("fixed", OptsFromConfig(cfg).ClientID)
}

func TestOnConnectPublishesEverything(t *testing.T) {
	assert := assert.New(t)
	b, conn, _, _ := newTestBridge(t)

	b.onConnect()

	bridgeState, ok := conn.last("intesis/bridge/state")
	require.True(t, ok)
	assert.Equal(PayloadOnline, bridgeState.payload)
	assert.True(bridgeState.retained)

	assert.Contains(conn.subscriptions, "intesis/+/+/set")

	// bridge + climate + sensors + binary sensors + select
	assert.Equal(1+1+len(entities)+1, conn.count("homeassistant/"))

	avail, ok := conn.last("intesis/SN1234567/availability")
	require.True(t, ok)
	assert.Equal(PayloadOnline, avail.payload)

	state, ok := conn.last("intesis/SN1234567/state")
	require.True(t, ok)
	var payload StatePayload
	require.NoError(t, json.Unmarshal([]byte(state.payload), &payload))
	assert.Equal("cool", payload.HVACMode)
	assert.Equal(PayloadOn, payload.Power)
	require.NotNil(t, payload.TargetTemperature)
	assert.Equal(22.0, *payload.TargetTemperature)
	assert.Equal("medium", payload.FanMode)
	assert.Equal("on", payload.SwingMode)
	assert.Equal("position_3", payload.HorizontalVane)
	assert.True(payload.ACConnection)
	assert.False(payload.CloudConnection)
}

func TestOnConnectWithoutDiscovery(t *testing.T) {
	b, conn, _, _ := newTestBridge(t)
	b.cfg.DiscoveryEnabled = false

	b.onConnect()

	assert.Equal(t, 0, conn.count("homeassistant/"))
}

func TestClimateDiscoveryPayload(t *testing.T) {
	assert := assert.New(t)
	b, conn, _, _ := newTestBridge(t)

	b.onConnect()

	msg, ok := conn.last("homeassistant/climate/SN1234567/climate/config")
	require.True(t, ok)
	assert.True(msg.retained)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &cfg))
	assert.Equal("intesis/SN1234567/mode/set", cfg["mode_command_topic"])
	assert.Equal("intesis/SN1234567/state", cfg["mode_state_topic"])
	assert.Equal("{{ value_json.hvac_mode }}", cfg["mode_state_template"])
	assert.Equal([]any{"off", "auto", "cool", "heat", "dry", "fan_only"}, cfg["modes"])
	assert.Equal([]any{"eco", "boost"}, cfg["preset_modes"])
	assert.Equal(18.0, cfg["min_temp"])
	assert.Equal(30.0, cfg["max_temp"])
	assert.Equal(0.5, cfg["temp_step"])
	assert.Nil(cfg["name"])

	device := cfg["device"].(map[string]any)
	assert.Equal([]any{"intesis_SN1234567"}, device["identifiers"])
	assert.Equal("Intesis INWMPUNI001I000", device["name"])
	assert.Equal("1.3.3", device["sw_version"])
}

func TestStateUpdatesArePublished(t *testing.T) {
	b, conn, c, _ := newTestBridge(t)
	b.start()

	require.NoError(t, c.SetFanMode("high"))

	eventually(t, "state with fan_mode high", func() bool {
		msg, ok := conn.last("intesis/SN1234567/state")
		return ok && strings.Contains(msg.payload, `"fan_mode":"high"`)
	})
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		payload string
		uid     deviceapi.UID
		want    int
	}{
		{"temperature", CmdTemperature, "21.5", deviceapi.UIDSetpoint, 215},
		{"mode", CmdMode, "heat", deviceapi.UIDMode, 2},
		{"mode off", CmdMode, "off", deviceapi.UIDPower, 0},
		{"fan", CmdFanMode, "low", deviceapi.UIDFanSpeed, 1},
		{"swing", CmdSwingMode, "position_2", deviceapi.UIDVaneVertical, 1},
		{"preset", CmdPresetMode, "boost", deviceapi.UIDQuietMode, 2},
		{"horizontal vane", CmdHorizontalVane, "on", deviceapi.UIDVaneHorizontal, 10},
		{"power off", CmdPower, "OFF", deviceapi.UIDPower, 0},
		{"power lowercase", CmdPower, "off", deviceapi.UIDPower, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _, dev := newTestBridge(t)

			err := b.HandleCommand("intesis/SN1234567/"+tt.command+"/set", []byte(tt.payload))
			require.NoError(t, err)

			eventually(t, "device write", func() bool {
				v, _ := dev.Value(int(tt.uid))
				return v == tt.want
			})
		})
	}
}

func TestHandleCommandErrors(t *testing.T) {
	b, _, _, _ := newTestBridge(t)

	tests := []struct {
		topic   string
		payload string
		wantErr error
	}{
		{"intesis/SN1234567/state", "x", ErrNotCommand},
		{"intesis/OTHER/mode/set", "cool", ErrUnknownDevice},
		{"intesis/SN1234567/colour/set", "red", ErrUnknownCommand},
		{"intesis/SN1234567/mode/set", "turbo", climate.ErrInvalidMode},
	}
	for _, tt := range tests {
		err := b.HandleCommand(tt.topic, []byte(tt.payload))
		assert.ErrorIs(t, err, tt.wantErr, tt.topic)
	}

	assert.Error(t, b.HandleCommand("intesis/SN1234567/temperature/set", []byte("warm")))
	assert.Error(t, b.HandleCommand("intesis/SN1234567/power/set", []byte("maybe")))
}

func TestStopWithoutStart(t *testing.T) {
	b := newBridge(testMQTTConfig(), nil, zap.NewNop())
	b.Stop()
}
