// Package devicetest provides an in-process fake Intesis adapter for tests.
// It speaks the /api.cgi JSON protocol, issues sessions, keeps datapoint
// values and lets tests inject the failure modes real adapters show.
package devicetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Error codes returned by the fake device
const (
	CodeInvalidCredentials = 1
	CodeInvalidSession     = 5
	CodeOutOfRange         = 7
	CodeUnknownUID         = 8
)

// Server is a fake Intesis adapter backed by httptest.Server
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	username    string
	password    string
	sessions    map[string]bool
	nextSession int
	values      map[int]int
	info        map[string]any
	calls       map[string]int
	writes      []Write

	loginDelay     time.Duration
	responseDelay  time.Duration
	rejectSessions int
	failNext       map[string]int
	statusNext     map[string]int
	malformedNext  map[string]bool
	ignoreWrites   bool
}

// Write records one setdatapointvalue the device accepted
type Write struct {
	UID   int
	Value int
}

// NewServer starts a fake device with factory credentials (admin/admin)
// and a plausible initial state.
func NewServer() *Server {
	s := &Server{
		username: "admin",
		password: "admin",
		sessions: make(map[string]bool),
		values: map[int]int{
			1:  1,   // power on
			2:  1,   // cool
			4:  3,   // medium
			5:  10,  // vertical swing
			6:  2,   // horizontal position_3
			9:  220, // 22.0°C
			10: 245, // 24.5°C
			12: 0,
			13: 0,
			14: 0,
			15: 0,
			35: 180,
			36: 300,
		},
		info: map[string]any{
			"deviceModel":  "INWMPUNI001I000",
			"sn":           "SN1234567 / 0001",
			"fwVersion":    "1.3.3",
			"wlanSTAMAC":   "CC:3F:1D:01:02:03",
			"wlanAPMAC":    "CE:3F:1D:01:02:03",
			"rssi":         -58,
			"acStatus":     1,
			"wlanLNK":      1,
			"tcpServerLNK": 0,
			"lastError":    0,
		},
		calls:         make(map[string]int),
		failNext:      make(map[string]int),
		statusNext:    make(map[string]int),
		malformedNext: make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetCredentials changes the accepted username and password
func (s *Server) SetCredentials(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.password = username, password
}

// SetValue changes a datapoint as if it was changed on the unit itself
func (s *Server) SetValue(uid, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[uid] = value
}

// Value returns the device's current value for uid
func (s *Server) Value(uid int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[uid]
	return v, ok
}

// SetInfo overrides one getinfo field
func (s *Server) SetInfo(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info[key] = value
}

// ExpireSessions drops every issued session
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// RejectSessions makes the next n authenticated calls fail with an invalid
// session error, even with a fresh session.
func (s *Server) RejectSessions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSessions = n
}

// FailNext makes the next call of command fail with the given device error code
func (s *Server) FailNext(command string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[command] = code
}

// StatusNext makes the next call of command answer with an HTTP status
func (s *Server) StatusNext(command string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusNext[command] = status
}

// MalformedNext makes the next call of command answer with invalid JSON
func (s *Server) MalformedNext(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformedNext[command] = true
}

// SetLoginDelay delays every login response
func (s *Server) SetLoginDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginDelay = d
}

// SetResponseDelay delays every response
func (s *Server) SetResponseDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responseDelay = d
}

// IgnoreWrites makes the device acknowledge writes without applying them
func (s *Server) IgnoreWrites(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreWrites = ignore
}

// Calls returns how many times command was received
func (s *Server) Calls(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[command]
}

// Writes returns the accepted writes in order
func (s *Server) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

type request struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/api.cgi" {
		http.NotFound(w, r)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Command]++
	delay := s.responseDelay
	if req.Command == "login" {
		delay += s.loginDelay
	}
	status, hasStatus := s.statusNext[req.Command]
	delete(s.statusNext, req.Command)
	malformed := s.malformedNext[req.Command]
	delete(s.malformedNext, req.Command)
	code, hasFailure := s.failNext[req.Command]
	delete(s.failNext, req.Command)
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if hasStatus {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if malformed {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":`))
		return
	}
	if hasFailure {
		writeError(w, code, "injected failure")
		return
	}

	switch req.Command {
	case "getinfo":
		s.handleGetInfo(w)
	case "login":
		s.handleLogin(w, req.Data)
	case "getdatapointvalue":
		if s.checkSession(w, req.Data) {
			s.handleGetValues(w)
		}
	case "setdatapointvalue":
		if s.checkSession(w, req.Data) {
			s.handleSetValue(w, req.Data)
		}
	case "getavailabledatapoints":
		if s.checkSession(w, req.Data) {
			s.handleAvailable(w)
		}
	default:
		writeError(w, 2, "unknown command")
	}
}

func (s *Server) handleGetInfo(w http.ResponseWriter) {
	s.mu.Lock()
	info := make(map[string]any, len(s.info))
	for k, v := range s.info {
		info[k] = v
	}
	s.mu.Unlock()
	writeData(w, map[string]any{"info": info})
}

func (s *Server) handleLogin(w http.ResponseWriter, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data["username"] != s.username || data["password"] != s.password {
		writeError(w, CodeInvalidCredentials, "Invalid username or password")
		return
	}
	s.nextSession++
	id := fmt.Sprintf("%08X%08X", s.nextSession, time.Now().UnixNano()&0xffffffff)
	s.sessions[id] = true
	writeData(w, map[string]any{"id": map[string]any{"sessionID": id}})
}

func (s *Server) checkSession(w http.ResponseWriter, data map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := data["sessionID"].(string)
	if s.rejectSessions > 0 {
		s.rejectSessions--
		writeError(w, CodeInvalidSession, "Invalid session")
		return false
	}
	if !s.sessions[id] {
		writeError(w, CodeInvalidSession, "Invalid session")
		return false
	}
	return true
}

func (s *Server) handleGetValues(w http.ResponseWriter) {
	s.mu.Lock()
	dpval := make([]map[string]int, 0, len(s.values))
	for uid, v := range s.values {
		dpval = append(dpval, map[string]int{"uid": uid, "value": v})
	}
	s.mu.Unlock()
	writeData(w, map[string]any{"dpval": dpval})
}

func (s *Server) handleSetValue(w http.ResponseWriter, data map[string]any) {
	uidF, ok1 := data["uid"].(float64)
	valF, ok2 := data["value"].(float64)
	if !ok1 || !ok2 {
		writeError(w, 3, "Missing uid or value")
		return
	}
	uid, value := int(uidF), int(valF)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[uid]; !ok {
		writeError(w, CodeUnknownUID, "Unknown uid")
		return
	}
	if uid == 9 && (value < s.values[35] || value > s.values[36]) {
		writeError(w, CodeOutOfRange, "Value out of range")
		return
	}
	s.writes = append(s.writes, Write{UID: uid, Value: value})
	if !s.ignoreWrites {
		s.values[uid] = value
	}
	writeData(w, map[string]any{})
}

func (s *Server) handleAvailable(w http.ResponseWriter) {
	s.mu.Lock()
	dps := make([]map[string]any, 0, len(s.values))
	for uid := range s.values {
		dps = append(dps, map[string]any{"uid": uid, "rw": "rw"})
	}
	s.mu.Unlock()
	writeData(w, map[string]any{"dp": map[string]any{"datapoints": dps}})
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]any{"code": code, "message": message},
	})
}
