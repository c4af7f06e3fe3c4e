package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/config"
	"github.com/muurk/intesis/internal/logging"
)

const (
	// DefaultTimeout bounds connect, publish and subscribe waits
	DefaultTimeout = 10 * time.Second

	updateQueueSize = 64
)

// ErrUnknownDevice is returned for a command addressed to a serial the bridge does not serve
var ErrUnknownDevice = errors.New("unknown device")

// ErrUnknownCommand is returned for an unsupported command name
var ErrUnknownCommand = errors.New("unknown command")

// conn is the part of the paho client the bridge publishes and subscribes through
type conn interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
}

// OptsFromConfig builds paho client options with a retained offline will
func OptsFromConfig(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("intesis_%d", rand.IntN(100000))
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetWill(bridgeStateTopic(cfg.BaseTopic), PayloadOffline, 1, true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)
	return opts
}

// Bridge publishes controller state to MQTT and applies commands received there
type Bridge struct {
	cfg     config.MQTTConfig
	topics  Topics
	client  pahomqtt.Client
	conn    conn
	logger  *zap.Logger
	timeout time.Duration

	devices map[string]*climate.Controller
	ids     []string

	updates chan string
	stop    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	unsubs    []func()
	lastState map[string]string
	started   bool
}

// NewBridge creates a bridge for already started controllers
func NewBridge(cfg config.MQTTConfig, controllers []*climate.Controller, logger *zap.Logger) *Bridge {
	b := newBridge(cfg, controllers, logger)

	opts := OptsFromConfig(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		b.logger.Info("connected to broker", zap.String("broker", cfg.Broker))
		b.onConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.logger.Warn("connection to broker lost", zap.Error(err))
	})
	b.client = pahomqtt.NewClient(opts)
	b.conn = b.client
	return b
}

func newBridge(cfg config.MQTTConfig, controllers []*climate.Controller, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = logging.Named("mqtt")
	}
	b := &Bridge{
		cfg:       cfg,
		topics:    NewTopics(cfg.BaseTopic, cfg.DiscoveryPrefix),
		logger:    logger,
		timeout:   DefaultTimeout,
		devices:   make(map[string]*climate.Controller, len(controllers)),
		updates:   make(chan string, updateQueueSize),
		stop:      make(chan struct{}),
		lastState: make(map[string]string),
	}
	for _, c := range controllers {
		id := TopicID(c.Status().Serial)
		b.devices[id] = c
		b.ids = append(b.ids, id)
	}
	return b
}

// Topics returns the topic layout
func (b *Bridge) Topics() Topics { return b.topics }

// Start connects to the broker. The paho client keeps retrying in the
// background when the broker is not reachable yet.
func (b *Bridge) Start(ctx context.Context) error {
	b.start()

	token := b.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connecting to %s: %w", b.cfg.Broker, err)
		}
	case <-time.After(b.timeout):
		b.logger.Warn("broker not reachable yet, retrying in background", zap.String("broker", b.cfg.Broker))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// start subscribes to the controllers and runs the publish loop
func (b *Bridge) start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	for _, id := range b.ids {
		b.unsubs = append(b.unsubs, b.devices[id].Subscribe(func(climate.Status) {
			b.queueUpdate(id)
		}))
	}

	b.wg.Add(1)
	go b.publishLoop()
}

func (b *Bridge) queueUpdate(id string) {
	select {
	case b.updates <- id:
	default:
		// queue full, a later update carries the newest state anyway
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case id := <-b.updates:
			b.publishState(id, false)
		}
	}
}

// onConnect announces the bridge, publishes discovery and state and
// subscribes to commands. It runs again after every reconnect.
func (b *Bridge) onConnect() {
	b.publish(b.topics.BridgeState(), true, PayloadOnline)

	if b.cfg.DiscoveryEnabled {
		b.publishDiscovery()
	}

	b.subscribe(b.topics.CommandFilter(), func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := b.HandleCommand(msg.Topic(), msg.Payload()); err != nil {
			b.logger.Warn("command rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})

	for _, id := range b.ids {
		b.publishState(id, true)
	}
}

func (b *Bridge) publishDiscovery() {
	b.publishDiscoveryMessage(b.topics.BridgeDiscovery())
	for _, id := range b.ids {
		c := b.devices[id]
		status := c.Status()
		b.publishDiscoveryMessage(b.topics.ClimateDiscovery(id, status, c.Options().TempStep))
		for _, msg := range b.topics.EntityDiscovery(id, status) {
			b.publishDiscoveryMessage(msg)
		}
	}
}

func (b *Bridge) publishDiscoveryMessage(msg DiscoveryMessage) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		b.logger.Error("encoding discovery config", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	b.publish(msg.Topic, true, data)
}

// publishState publishes the state and availability of one device. Unchanged
// state is skipped unless force is set.
func (b *Bridge) publishState(id string, force bool) {
	c, ok := b.devices[id]
	if !ok {
		return
	}
	status := c.Status()
	data, err := json.Marshal(NewStatePayload(status))
	if err != nil {
		b.logger.Error("encoding state", zap.String("device", id), zap.Error(err))
		return
	}

	availability := PayloadOffline
	if status.Available {
		availability = PayloadOnline
	}
	key := availability + string(data)

	b.mu.Lock()
	if !force && b.lastState[id] == key {
		b.mu.Unlock()
		return
	}
	b.lastState[id] = key
	b.mu.Unlock()

	b.publish(b.topics.DeviceAvailability(id), true, availability)
	b.publish(b.topics.DeviceState(id), b.cfg.Retain, data)
}

// HandleCommand applies a command received on a command topic
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	logging.LogMQTTMessage("in", topic, payload)

	cmd, err := b.topics.ParseCommand(topic, payload)
	if err != nil {
		return err
	}
	c, ok := b.devices[cmd.Serial]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, cmd.Serial)
	}

	value := strings.TrimSpace(cmd.Payload)
	switch cmd.Command {
	case CmdMode:
		return c.SetHVACMode(value)
	case CmdTemperature:
		celsius, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", value, err)
		}
		return c.SetTemperature(celsius)
	case CmdFanMode:
		return c.SetFanMode(value)
	case CmdSwingMode:
		return c.SetSwingMode(value)
	case CmdPresetMode:
		return c.SetPresetMode(value)
	case CmdHorizontalVane:
		return c.SetHorizontalVane(value)
	case CmdPower:
		switch strings.ToUpper(value) {
		case PayloadOn:
			return c.TurnOn()
		case PayloadOff:
			return c.TurnOff()
		}
		return fmt.Errorf("invalid power payload %q (use ON or OFF)", value)
	case CmdRefresh:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()
			if err := c.Refresh(ctx); err != nil {
				b.logger.Warn("refresh failed", zap.String("device", cmd.Serial), zap.Error(err))
			}
		}()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Command)
}

func (b *Bridge) publish(topic string, retained bool, payload any) {
	if data, ok := payload.([]byte); ok {
		logging.LogMQTTMessage("out", topic, data)
	} else {
		logging.LogMQTTMessage("out", topic, []byte(fmt.Sprint(payload)))
	}

	token := b.conn.Publish(topic, b.cfg.QoS, retained, payload)
	go func() {
		if !token.WaitTimeout(b.timeout) {
			b.logger.Warn("MQTT publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (b *Bridge) subscribe(topic string, handler pahomqtt.MessageHandler) {
	token := b.conn.Subscribe(topic, b.cfg.QoS, handler)
	go func() {
		if !token.WaitTimeout(b.timeout) {
			b.logger.Warn("MQTT subscribe timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			b.logger.Error("MQTT subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// Stop marks the bridge offline, stops publishing and disconnects
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	close(b.stop)
	b.wg.Wait()

	if b.client != nil && b.client.IsConnected() {
		token := b.client.Publish(b.topics.BridgeState(), 1, true, PayloadOffline)
		token.WaitTimeout(b.timeout)
		b.client.Disconnect(250)
	}
}
