package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/intesis/internal/clock"
	"github.com/muurk/intesis/internal/deviceapi"
)

const (
	// DefaultSettleDelay is how long after an acknowledged write the device is
	// given before its reported value is trusted
	DefaultSettleDelay = 2 * time.Second

	// DefaultMaxAttempts is how many mismatched verifications are tolerated
	// before the device's value replaces the optimistic one
	DefaultMaxAttempts = 2
)

// ErrClosed is returned by RequestChange after Close
var ErrClosed = errors.New("reconcile: engine closed")

// Device is the part of the device client the engine drives
type Device interface {
	ReadAll(ctx context.Context) (deviceapi.State, error)
	Write(ctx context.Context, uid deviceapi.UID, value int) error
}

// Options tunes the engine
type Options struct {
	// SettleDelay is the wait between a write acknowledgement and its verification read
	SettleDelay time.Duration

	// MaxAttempts is the number of mismatched verifications before the device wins
	MaxAttempts int

	// Clock drives settle timers (default: system clock)
	Clock clock.Clock

	// Logger receives engine events (default: no-op)
	Logger *zap.Logger
}

// DefaultOptions returns the default settle delay and retry budget
func DefaultOptions() Options {
	return Options{
		SettleDelay: DefaultSettleDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// PendingChange is an optimistic value waiting for device confirmation
type PendingChange struct {
	UID          deviceapi.UID `json:"uid"`
	Value        int           `json:"value"`
	IssuedAt     time.Time     `json:"issued_at"`
	Attempt      int           `json:"attempt"`
	Acknowledged bool          `json:"acknowledged"`
}

type queued struct {
	uid   deviceapi.UID
	value int
	seq   uint64
}

type pending struct {
	PendingChange
	seq      uint64
	verifyAt time.Time
	timer    clock.Timer
}

func (p *pending) stop() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Engine holds the exposed device state for one device and reconciles
// optimistic writes against what the device later reports.
type Engine struct {
	device      Device
	settleDelay time.Duration
	maxAttempts int
	clock       clock.Clock
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	confirmed deviceapi.State
	pending   map[deviceapi.UID]*pending
	seq       uint64
	closed    bool

	// queue holds changes waiting to be sent, in request order
	queue []queued
	wake  chan struct{}

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an engine driving device
func New(device Device, opts Options) *Engine {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		device:      device,
		settleDelay: opts.SettleDelay,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		logger:      opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
		confirmed:   make(deviceapi.State),
		pending:     make(map[deviceapi.UID]*pending),
		wake:        make(chan struct{}, 1),
		subs:        make(map[int]func(Event)),
	}
	go e.writer()
	return e
}

// SettleDelay returns the configured settle delay
func (e *Engine) SettleDelay() time.Duration { return e.settleDelay }

// MaxAttempts returns the configured retry budget
func (e *Engine) MaxAttempts() int { return e.maxAttempts }

// State returns the exposed state: confirmed values overlaid with pending
// optimistic values.
func (e *Engine) State() deviceapi.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exposedLocked()
}

// Confirmed returns the values last reported by the device
func (e *Engine) Confirmed() deviceapi.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmed.Clone()
}

// Pending returns the outstanding changes ordered by UID
func (e *Engine) Pending() []PendingChange {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PendingChange, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p.PendingChange)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// RequestChange exposes value immediately and writes it to the device in the
// background. A pending change for the same datapoint is superseded.
func (e *Engine) RequestChange(uid deviceapi.UID, value int) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	var events []Event
	if old := e.pending[uid]; old != nil {
		old.stop()
		events = append(events, Event{Type: EventSuperseded, UID: uid, Value: old.Value, Attempt: old.Attempt})
	}

	e.seq++
	p := &pending{
		PendingChange: PendingChange{UID: uid, Value: value, IssuedAt: e.clock.Now()},
		seq:           e.seq,
	}
	e.pending[uid] = p
	e.queue = append(e.queue, queued{uid: uid, value: value, seq: p.seq})
	events = append(events, Event{Type: EventOptimistic, UID: uid, Value: value})
	snap := e.exposedLocked()
	e.mu.Unlock()

	e.logger.Debug("change requested", zap.Stringer("uid", uid), zap.Int("value", value))
	e.emit(events, snap)

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// writer sends queued changes one at a time in request order until Close
func (e *Engine) writer() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.wake:
		}

		for {
			item, ok := e.dequeue()
			if !ok {
				break
			}
			e.write(item.uid, item.value, item.seq)
		}
	}
}

// dequeue pops the next change that has not been superseded
func (e *Engine) dequeue() (queued, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.queue) > 0 {
		item := e.queue[0]
		e.queue = e.queue[1:]
		if p := e.pending[item.uid]; !e.closed && p != nil && p.seq == item.seq {
			return item, true
		}
	}
	return queued{}, false
}

// write sends one change and schedules its verification
func (e *Engine) write(uid deviceapi.UID, value int, seq uint64) {
	err := e.device.Write(e.ctx, uid, value)

	e.mu.Lock()
	p := e.pending[uid]
	if e.closed || p == nil || p.seq != seq {
		e.mu.Unlock()
		return
	}

	if err != nil {
		delete(e.pending, uid)
		snap := e.exposedLocked()
		e.mu.Unlock()

		e.logger.Warn("write failed, reverting",
			zap.Stringer("uid", uid),
			zap.Int("value", value),
			zap.Error(err),
		)
		e.emit([]Event{{Type: EventReverted, UID: uid, Value: value, Err: err}}, snap)
		return
	}

	p.Acknowledged = true
	e.scheduleLocked(p)
	snap := e.exposedLocked()
	e.mu.Unlock()

	e.emit([]Event{{Type: EventWritten, UID: uid, Value: value}}, snap)
}

// scheduleLocked arms the verification timer for p
func (e *Engine) scheduleLocked(p *pending) {
	p.stop()
	p.verifyAt = e.clock.Now().Add(e.settleDelay)
	uid, seq := p.UID, p.seq
	p.timer = e.clock.AfterFunc(e.settleDelay, func() { e.verify(uid, seq) })
}

// verify reads the device after the settle delay and reconciles
func (e *Engine) verify(uid deviceapi.UID, seq uint64) {
	e.mu.Lock()
	p := e.pending[uid]
	if e.closed || p == nil || p.seq != seq {
		e.mu.Unlock()
		return
	}
	p.timer = nil
	e.mu.Unlock()

	state, err := e.device.ReadAll(e.ctx)
	if err != nil {
		e.missedVerification(uid, seq, err)
		return
	}

	e.Reconcile(state)

	// The read did not include this datapoint, so nothing resolved or
	// rescheduled it.
	e.mu.Lock()
	p = e.pending[uid]
	unresolved := !e.closed && p != nil && p.seq == seq && p.timer == nil
	e.mu.Unlock()
	if unresolved {
		e.missedVerification(uid, seq, nil)
	}
}

// missedVerification counts a verification that produced no value for uid.
// Once the budget is spent the optimistic value is dropped.
func (e *Engine) missedVerification(uid deviceapi.UID, seq uint64, readErr error) {
	e.mu.Lock()
	p := e.pending[uid]
	if e.closed || p == nil || p.seq != seq {
		e.mu.Unlock()
		return
	}

	p.Attempt++
	var ev Event
	if p.Attempt >= e.maxAttempts {
		p.stop()
		delete(e.pending, uid)
		ev = Event{Type: EventReverted, UID: uid, Value: p.Value, Attempt: p.Attempt, Err: readErr}
	} else {
		e.scheduleLocked(p)
		ev = Event{Type: EventReadFailed, UID: uid, Value: p.Value, Attempt: p.Attempt, Err: readErr}
	}
	snap := e.exposedLocked()
	e.mu.Unlock()

	e.logger.Debug("verification read missed",
		zap.Stringer("uid", uid),
		zap.Int("attempt", ev.Attempt),
		zap.Error(readErr),
	)
	e.emit([]Event{ev}, snap)
}

// Reconcile applies a device read. Pending changes whose value matches are
// confirmed. Settled mismatches are retried until the budget is spent, after
// which the device value wins. Datapoints without a pending change take the
// device value directly.
func (e *Engine) Reconcile(latest deviceapi.State) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	var events []Event

	uids := make([]deviceapi.UID, 0, len(latest))
	for uid := range latest {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	for _, uid := range uids {
		v := latest[uid]
		e.confirmed[uid] = v

		p := e.pending[uid]
		if p == nil {
			continue
		}

		if v == p.Value {
			p.stop()
			delete(e.pending, uid)
			events = append(events, Event{Type: EventConfirmed, UID: uid, Value: v, DeviceValue: v, Attempt: p.Attempt})
			continue
		}

		// still settling
		if !p.Acknowledged || now.Before(p.verifyAt) {
			continue
		}

		p.Attempt++
		if p.Attempt >= e.maxAttempts {
			p.stop()
			delete(e.pending, uid)
			events = append(events, Event{Type: EventCorrected, UID: uid, Value: p.Value, DeviceValue: v, Attempt: p.Attempt})
			continue
		}

		e.scheduleLocked(p)
		events = append(events, Event{Type: EventRetry, UID: uid, Value: p.Value, DeviceValue: v, Attempt: p.Attempt})
	}

	if len(events) == 0 {
		events = append(events, Event{Type: EventPolled})
	}
	snap := e.exposedLocked()
	e.mu.Unlock()

	for _, ev := range events {
		switch ev.Type {
		case EventCorrected:
			e.logger.Info("device value accepted over optimistic value",
				zap.Stringer("uid", ev.UID),
				zap.Int("optimistic", ev.Value),
				zap.Int("device", ev.DeviceValue),
			)
		case EventRetry:
			e.logger.Debug("verification mismatch, retrying",
				zap.Stringer("uid", ev.UID),
				zap.Int("optimistic", ev.Value),
				zap.Int("device", ev.DeviceValue),
				zap.Int("attempt", ev.Attempt),
			)
		case EventConfirmed:
			e.logger.Debug("change confirmed", zap.Stringer("uid", ev.UID), zap.Int("value", ev.Value))
		}
	}
	e.emit(events, snap)
}

// Close cancels outstanding verifications and in-flight requests. The state
// is frozen afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.queue = nil
	for _, p := range e.pending {
		p.stop()
	}
	e.mu.Unlock()

	e.cancel()

	e.subsMu.Lock()
	e.subs = make(map[int]func(Event))
	e.subsMu.Unlock()
}

// Closed reports whether Close has been called
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Subscribe registers fn for every engine event and returns a function that
// removes it. fn runs on the goroutine that produced the event and must not
// block.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) emit(events []Event, snap deviceapi.State) {
	e.subsMu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subsMu.Unlock()

	for _, ev := range events {
		ev.At = e.clock.Now()
		ev.State = snap
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (e *Engine) exposedLocked() deviceapi.State {
	out := e.confirmed.Clone()
	for uid, p := range e.pending {
		out[uid] = p.Value
	}
	return out
}
