package deviceapi

import (
	"encoding/json"
	"sync"
	"time"
)

// RedactedValue replaces sensitive values in diagnostics output
const RedactedValue = "**REDACTED**"

// DefaultExchangeHistory is how many raw exchanges a Recorder keeps
const DefaultExchangeHistory = 20

// redactKeys are JSON keys whose values never leave the process unredacted
var redactKeys = map[string]bool{
	"password":   true,
	"username":   true,
	"sessionID":  true,
	"wlanSTAMAC": true,
	"wlanAPMAC":  true,
	"sn":         true,
}

// Redact returns a deep copy of v with sensitive keys replaced.
// Maps and slices are copied; other values are returned as is.
func Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if redactKeys[k] {
				out[k] = RedactedValue
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}

// RedactMap is Redact for the common map case
func RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Redact(m).(map[string]any)
}

// redactJSON parses body and returns it redacted; unparseable bodies are
// summarised rather than echoed.
func redactJSON(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{"unparseable_bytes": len(body)}
	}
	return Redact(v)
}

// Exchange is one recorded request/response pair
type Exchange struct {
	At         time.Time     `json:"at"`
	Command    string        `json:"command"`
	Request    any           `json:"request,omitempty"`
	Response   any           `json:"response,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Recorder keeps the most recent exchanges, redacted, for support output
type Recorder struct {
	mu    sync.Mutex
	limit int
	items []Exchange
}

// NewRecorder creates a recorder holding at most limit exchanges
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultExchangeHistory
	}
	return &Recorder{limit: limit}
}

// Record stores an exchange, redacting the request and response bodies
func (r *Recorder) Record(command string, reqBody, respBody []byte, status int, started time.Time, duration time.Duration, err error) {
	ex := Exchange{
		At:         started,
		Command:    command,
		Request:    redactJSON(reqBody),
		Response:   redactJSON(respBody),
		StatusCode: status,
		Duration:   duration,
	}
	if err != nil {
		ex.Error = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, ex)
	if len(r.items) > r.limit {
		r.items = append([]Exchange(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// Exchanges returns a copy of the recorded exchanges, oldest first
func (r *Recorder) Exchanges() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exchange(nil), r.items...)
}
