package reconcile

import (
	"time"

	"github.com/muurk/intesis/internal/deviceapi"
)

// EventType identifies a state transition of a datapoint
type EventType int

const (
	// EventPolled is a device read that touched no pending change
	EventPolled EventType = iota
	// EventOptimistic is a change accepted and exposed before confirmation
	EventOptimistic
	// EventSuperseded is a pending change replaced by a newer one
	EventSuperseded
	// EventWritten is a write the device acknowledged; verification is scheduled
	EventWritten
	// EventConfirmed is a pending change the device now reports
	EventConfirmed
	// EventRetry is a mismatch within the retry budget
	EventRetry
	// EventCorrected is a pending change abandoned in favour of the device value
	EventCorrected
	// EventReadFailed is a verification read that returned no value for the datapoint
	EventReadFailed
	// EventReverted is a pending change dropped because its write or all its
	// verification reads failed
	EventReverted
)

var eventNames = map[EventType]string{
	EventPolled:     "polled",
	EventOptimistic: "optimistic",
	EventSuperseded: "superseded",
	EventWritten:    "written",
	EventConfirmed:  "confirmed",
	EventRetry:      "retry",
	EventCorrected:  "corrected",
	EventReadFailed: "read_failed",
	EventReverted:   "reverted",
}

// String returns the event name used in logs and metrics
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the event ends a pending change
func (t EventType) Terminal() bool {
	switch t {
	case EventConfirmed, EventCorrected, EventReverted, EventSuperseded:
		return true
	default:
		return false
	}
}

// Event describes one engine transition
type Event struct {
	Type EventType
	UID  deviceapi.UID

	// Value is the optimistic value the event is about
	Value int

	// DeviceValue is what the device reported, for confirm/retry/correct
	DeviceValue int

	Attempt int
	Err     error
	At      time.Time

	// State is the exposed state after the transition. It is shared between
	// subscribers and must not be modified.
	State deviceapi.State
}
