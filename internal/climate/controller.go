package climate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/intesis/internal/clock"
	"github.com/muurk/intesis/internal/deviceapi"
	"github.com/muurk/intesis/internal/logging"
	"github.com/muurk/intesis/internal/reconcile"
)

const (
	// DefaultScanInterval is the routine poll interval
	DefaultScanInterval = 30 * time.Second

	// MinScanInterval is the shortest accepted poll interval
	MinScanInterval = 5 * time.Second

	// DefaultTempStep is the default setpoint step in °C
	DefaultTempStep = 0.5
)

// SuggestedScanIntervals are offered by the setup tooling
var SuggestedScanIntervals = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// ErrNotWritable is returned by SetDatapoint for read-only or unknown datapoints
var ErrNotWritable = errors.New("datapoint is not writable")

// Options configures a Controller
type Options struct {
	ScanInterval time.Duration
	TempStep     float64
	SettleDelay  time.Duration
	MaxAttempts  int

	// Name replaces the model-derived display name
	Name string

	// Clock drives settle timers (default: system clock)
	Clock clock.Clock

	// Logger (default: logging.Named("climate"))
	Logger *zap.Logger
}

// DefaultOptions returns the default polling and reconciliation settings
func DefaultOptions() Options {
	return Options{
		ScanInterval: DefaultScanInterval,
		TempStep:     DefaultTempStep,
		SettleDelay:  reconcile.DefaultSettleDelay,
		MaxAttempts:  reconcile.DefaultMaxAttempts,
	}
}

// Validate checks the options
func (o Options) Validate() error {
	if o.ScanInterval < MinScanInterval {
		return fmt.Errorf("scan interval %s is below the minimum of %s", o.ScanInterval, MinScanInterval)
	}
	if !ValidTempStep(o.TempStep) {
		return fmt.Errorf("temperature step %v is not supported (use 0.5 or 1.0)", o.TempStep)
	}
	if o.SettleDelay <= 0 {
		return fmt.Errorf("settle delay must be positive, got %s", o.SettleDelay)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", o.MaxAttempts)
	}
	return nil
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ScanInterval <= 0 {
		o.ScanInterval = d.ScanInterval
	}
	if o.TempStep <= 0 {
		o.TempStep = d.TempStep
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = d.SettleDelay
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Clock == nil {
		o.Clock = clock.NewReal()
	}
	if o.Logger == nil {
		o.Logger = logging.Named("climate")
	}
	return o
}

// Controller owns the client, session and reconciliation engine of one
// device and exposes it as a climate entity.
type Controller struct {
	client *deviceapi.Client
	engine *reconcile.Engine
	opts   Options
	logger *zap.Logger
	poller *Poller

	// refreshMu serializes refreshes; the poller skips a tick while one runs
	refreshMu sync.Mutex

	mu         sync.RWMutex
	info       *deviceapi.DeviceInfo
	available  bool
	lastErr    error
	lastUpdate time.Time
	turningOn  bool
	closed     bool

	subsMu  sync.Mutex
	subs    map[int]func(Status)
	nextSub int

	unsubscribe func()
}

// NewController creates a controller for client. Nothing is sent to the
// device until Start or Refresh.
func NewController(client *deviceapi.Client, opts Options) *Controller {
	opts = opts.withDefaults()

	c := &Controller{
		client: client,
		opts:   opts,
		logger: opts.Logger.With(zap.String("host", client.Host())),
		subs:   make(map[int]func(Status)),
	}
	c.engine = reconcile.New(client, reconcile.Options{
		SettleDelay: opts.SettleDelay,
		MaxAttempts: opts.MaxAttempts,
		Clock:       opts.Clock,
		Logger:      opts.Logger.Named("reconcile"),
	})
	c.unsubscribe = c.engine.Subscribe(c.handleEvent)
	c.poller = NewPoller(opts.ScanInterval, c.poll, opts.Logger.Named("poller"))
	return c
}

// Options returns the effective options
func (c *Controller) Options() Options { return c.opts }

// Client returns the device client
func (c *Controller) Client() *deviceapi.Client { return c.client }

// Host returns the device host
func (c *Controller) Host() string { return c.client.Host() }

// Start fetches device info, performs the first refresh and starts polling.
// It fails when the device is unreachable or the first refresh fails.
//
// ctx bounds the start-up exchanges only. Polling continues after ctx is
// done and stops on Close.
func (c *Controller) Start(ctx context.Context) error {
	info, err := c.client.GetDeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.client.Host(), err)
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	c.logger.Info("device found",
		zap.String("model", info.Model),
		zap.String("serial", info.Serial()),
		zap.String("firmware", info.FWVersion),
	)

	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("first refresh: %w", err)
	}

	return c.poller.Start()
}

// Polling reports whether the scheduled refresh is active
func (c *Controller) Polling() bool { return c.poller.Running() }

// Validate checks reachability and credentials. The returned error maps to a
// setup code with deviceapi.SetupErrorCode.
func (c *Controller) Validate(ctx context.Context) (*deviceapi.DeviceInfo, error) {
	info, err := c.client.Validate(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	return info, nil
}

// Refresh reads every datapoint and the device info. A communication failure
// marks the device unavailable and keeps the last-known state.
func (c *Controller) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refresh(ctx)
}

// poll is the scheduled refresh; a tick is skipped while another refresh runs
func (c *Controller) poll(ctx context.Context) error {
	if !c.refreshMu.TryLock() {
		c.logger.Debug("refresh already running, skipping poll")
		return nil
	}
	defer c.refreshMu.Unlock()
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) error {
	if c.engine.Closed() {
		return reconcile.ErrClosed
	}

	state, err := c.client.ReadAll(ctx)
	var info *deviceapi.DeviceInfo
	if err == nil {
		info, err = c.client.GetDeviceInfo(ctx)
	}

	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		wasAvailable := c.available
		if deviceapi.IsCommunicationError(err) {
			c.available = false
		}
		nowUnavailable := wasAvailable && !c.available
		c.mu.Unlock()

		if nowUnavailable {
			c.logger.Warn("device unavailable", zap.String("reason", deviceapi.GetShortErrorMessage(err)))
		} else {
			c.logger.Debug("refresh failed", zap.Error(err))
		}
		c.notify()
		return fmt.Errorf("refresh: %w", err)
	}

	c.mu.Lock()
	if !c.available {
		c.logger.Info("device available")
	}
	c.info = info
	c.available = true
	c.lastErr = nil
	c.lastUpdate = c.opts.Clock.Now()
	c.mu.Unlock()

	// Reconcile emits an event which triggers notify
	c.engine.Reconcile(state)
	return nil
}

// View returns the climate entity view of the exposed state
func (c *Controller) View() View {
	state := c.engine.State()

	c.mu.RLock()
	info, available, turningOn := c.info, c.available, c.turningOn
	c.mu.RUnlock()

	v := buildView(state, info, c.opts.TempStep, available)
	if turningOn && v.HVACMode != HVACOff {
		v.HVACMode = HVACAuto
	}
	return v
}

// SetTemperature quantizes celsius to the temperature step, clamps it to the
// device limits and requests the setpoint change.
func (c *Controller) SetTemperature(celsius float64) error {
	minTenths, maxTenths := Limits(c.engine.State())
	tenths := CelsiusToTenths(QuantizeTemperature(celsius, c.opts.TempStep))
	tenths = ClampTenths(tenths, minTenths, maxTenths)
	return c.request(deviceapi.UIDSetpoint, tenths)
}

// SetHVACMode switches the unit off, or powers it on when needed and sets
// the operating mode.
func (c *Controller) SetHVACMode(mode string) error {
	if strings.EqualFold(strings.TrimSpace(mode), HVACOff) {
		return c.request(deviceapi.UIDPower, 0)
	}

	value, err := ModeTable.Value(mode)
	if err != nil {
		return err
	}

	if c.engine.State().Get(deviceapi.UIDPower, 0) == 0 {
		if err := c.request(deviceapi.UIDPower, 1); err != nil {
			return err
		}
	}
	return c.request(deviceapi.UIDMode, value)
}

// SetFanMode sets the fan speed by name
func (c *Controller) SetFanMode(mode string) error {
	return c.setFromTable(FanTable, deviceapi.UIDFanSpeed, mode)
}

// SetSwingMode sets the vertical vane by name
func (c *Controller) SetSwingMode(mode string) error {
	return c.setFromTable(SwingTable, deviceapi.UIDVaneVertical, mode)
}

// SetHorizontalVane sets the horizontal vane by name
func (c *Controller) SetHorizontalVane(mode string) error {
	return c.setFromTable(HorizontalVaneTable, deviceapi.UIDVaneHorizontal, mode)
}

// SetPresetMode sets quiet/powerful operation by preset name
func (c *Controller) SetPresetMode(mode string) error {
	return c.setFromTable(PresetTable, deviceapi.UIDQuietMode, mode)
}

// TurnOn powers the unit on. The view reads auto until the device confirms
// or rejects the change.
func (c *Controller) TurnOn() error {
	c.mu.Lock()
	c.turningOn = true
	c.mu.Unlock()

	if err := c.request(deviceapi.UIDPower, 1); err != nil {
		c.mu.Lock()
		c.turningOn = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// TurnOff powers the unit off
func (c *Controller) TurnOff() error {
	return c.request(deviceapi.UIDPower, 0)
}

// SetDatapoint requests a raw datapoint change
func (c *Controller) SetDatapoint(uid deviceapi.UID, value int) error {
	if !uid.Writable() {
		return fmt.Errorf("%w: %s", ErrNotWritable, uid)
	}
	return c.request(uid, value)
}

func (c *Controller) setFromTable(t *Table, uid deviceapi.UID, name string) error {
	value, err := t.Value(name)
	if err != nil {
		return err
	}
	return c.request(uid, value)
}

func (c *Controller) request(uid deviceapi.UID, value int) error {
	if err := c.engine.RequestChange(uid, value); err != nil {
		return fmt.Errorf("set %s=%d: %w", uid, value, err)
	}
	return nil
}

// Status returns a snapshot of the device
func (c *Controller) Status() Status {
	c.mu.RLock()
	info, available, lastErr, lastUpdate := c.info, c.available, c.lastErr, c.lastUpdate
	c.mu.RUnlock()

	name := info.DisplayName()
	if c.opts.Name != "" {
		name = c.opts.Name
	}

	s := Status{
		Host:       c.client.Host(),
		Serial:     info.Serial(),
		Name:       name,
		DeviceInfo: info,
		State:      c.engine.State(),
		Confirmed:  c.engine.Confirmed(),
		Pending:    c.engine.Pending(),
		Available:  available,
		LastUpdate: lastUpdate,
		Climate:    c.View(),
	}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}
	return s
}

// DeviceInfo returns the last fetched device info, or nil
func (c *Controller) DeviceInfo() *deviceapi.DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Available reports whether the last refresh reached the device
func (c *Controller) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// Diagnostics returns the redacted support dump
func (c *Controller) Diagnostics() Diagnostics {
	c.mu.RLock()
	info, available, lastErr := c.info, c.available, c.lastErr
	c.mu.RUnlock()

	d := Diagnostics{
		Config: DiagnosticsConfig{
			Host:         c.client.Host(),
			ScanInterval: int(c.opts.ScanInterval / time.Second),
			TempStep:     c.opts.TempStep,
			SettleDelay:  c.opts.SettleDelay.String(),
			MaxAttempts:  c.opts.MaxAttempts,
		},
		DeviceInfo: map[string]any{},
		Datapoints: map[string]int{},
		Available:  available,
		Pending:    c.engine.Pending(),
		Exchanges:  c.client.Exchanges(),
	}
	if info != nil {
		d.DeviceInfo = deviceapi.RedactMap(info.Raw)
	}
	for uid, v := range c.engine.Confirmed() {
		d.Datapoints[strconv.Itoa(int(uid))] = v
	}
	if lastErr != nil {
		d.LastError = lastErr.Error()
	}
	return d
}

// Subscribe registers fn for status changes: engine transitions and refresh
// results. fn must not block. The returned function removes it.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs, id)
	}
}

// OnEvent registers fn for raw reconciliation events
func (c *Controller) OnEvent(fn func(reconcile.Event)) func() {
	return c.engine.Subscribe(fn)
}

// WaitSettled blocks until no change is pending or ctx ends
func (c *Controller) WaitSettled(ctx context.Context) error {
	done := make(chan struct{}, 1)
	unsubscribe := c.engine.Subscribe(func(ev reconcile.Event) {
		if ev.Type.Terminal() {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	for len(c.engine.Pending()) > 0 {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops polling and cancels outstanding verifications
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.poller.Stop()
	c.unsubscribe()
	c.engine.Close()

	c.subsMu.Lock()
	c.subs = make(map[int]func(Status))
	c.subsMu.Unlock()
}

func (c *Controller) handleEvent(ev reconcile.Event) {
	if ev.UID == deviceapi.UIDPower && ev.Type.Terminal() && ev.Type != reconcile.EventSuperseded {
		c.mu.Lock()
		c.turningOn = false
		c.mu.Unlock()
	}
	c.notify()
}

func (c *Controller) notify() {
	c.subsMu.Lock()
	subs := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.Unlock()

	if len(subs) == 0 {
		return
	}
	status := c.Status()
	for _, fn := range subs {
		fn(status)
	}
}
