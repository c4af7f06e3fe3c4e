package deviceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/intesis/internal/clock"
)

const (
	// DefaultPort is the adapter's HTTP port
	DefaultPort = 80

	// DefaultUsername is the factory default local API username
	DefaultUsername = "admin"

	// DefaultPassword is the factory default local API password
	DefaultPassword = "admin"

	// DefaultTimeout bounds every request to the device
	DefaultTimeout = 10 * time.Second

	// DefaultRequestInterval spaces consecutive requests to the device
	DefaultRequestInterval = 100 * time.Millisecond

	// DefaultRequestBurst is how many requests may be sent back to back
	DefaultRequestBurst = 4

	// maxResponseBytes caps how much of a response body is read
	maxResponseBytes = 1 << 20
)

// Client talks to the local HTTP API of one Intesis adapter
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.1.50")
	BaseURL string

	// HTTPClient is the underlying HTTP client; its Timeout bounds every call
	HTTPClient *http.Client

	creds      Credentials
	port       int
	sessionTTL time.Duration
	clock      clock.Clock
	limiter    *rate.Limiter
	recorder   *Recorder
	logger     *zap.Logger
	sessions   *SessionManager
}

// Option configures a Client
type Option func(*Client)

// WithPort sets the device port (default 80)
func WithPort(port int) Option {
	return func(c *Client) { c.port = port }
}

// WithBaseURL overrides the URL derived from the host, e.g. for tests
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.BaseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = timeout }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithSessionTTL sets how long a session is trusted locally (0 disables expiry)
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Client) { c.sessionTTL = ttl }
}

// WithClock sets the clock used for session expiry
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithRateLimit sets request pacing; rate.Inf disables it
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithRecorder sets the recorder that keeps raw exchanges for diagnostics
func WithRecorder(r *Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the device identified by creds.Host
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		creds:      creds,
		port:       DefaultPort,
		sessionTTL: DefaultSessionTTL,
		clock:      clock.NewReal(),
		limiter:    rate.NewLimiter(rate.Every(DefaultRequestInterval), DefaultRequestBurst),
		recorder:   NewRecorder(DefaultExchangeHistory),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.BaseURL == "" {
		c.BaseURL = BaseURLFor(creds.Host, c.port)
	}
	c.logger = c.logger.With(zap.String("host", creds.Host))
	c.sessions = NewSessionManager(c.login, c.sessionTTL, c.clock, c.logger.Named("session"))
	return c
}

// BaseURLFor builds the device URL from a host that may already carry a
// scheme or port.
func BaseURLFor(host string, port int) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return "http://" + host
	}
	if port == 0 || port == DefaultPort {
		if strings.Contains(host, ":") {
			return "http://[" + host + "]"
		}
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Host returns the configured device host
func (c *Client) Host() string {
	return c.creds.Host
}

// Sessions returns the client's session manager
func (c *Client) Sessions() *SessionManager {
	return c.sessions
}

// Exchanges returns the most recent raw exchanges, redacted
func (c *Client) Exchanges() []Exchange {
	return c.recorder.Exchanges()
}

// GetDeviceInfo fetches static device metadata. It does not need a session.
func (c *Client) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	raw, err := c.exchange(ctx, CmdGetInfo, nil)
	if err != nil {
		return nil, err
	}

	var data infoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, NewProtocolError("failed to parse getinfo response", err)
	}
	if len(data.Info) == 0 {
		return nil, NewProtocolError("getinfo response has no info object", nil)
	}

	info, err := parseDeviceInfo(data.Info)
	if err != nil {
		return nil, NewProtocolError("failed to parse device info", err)
	}
	return info, nil
}

// Validate checks the device answers getinfo and accepts the credentials.
// It always performs a fresh login.
func (c *Client) Validate(ctx context.Context) (*DeviceInfo, error) {
	info, err := c.GetDeviceInfo(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.sessions.Login(ctx); err != nil {
		return info, err
	}
	return info, nil
}

// ReadAll fetches every datapoint in one exchange. Entries with unknown or
// missing UIDs are omitted.
func (c *Client) ReadAll(ctx context.Context) (State, error) {
	raw, err := c.authenticated(ctx, CmdGetDatapointValue, map[string]any{"uid": "all"})
	if err != nil {
		return nil, err
	}

	var data datapointData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, NewProtocolError("failed to parse datapoint response", err)
	}
	if data.DPVal == nil {
		return nil, NewProtocolError("datapoint response has no dpval list", nil)
	}

	state := make(State, len(data.DPVal))
	for _, entry := range data.DPVal {
		var dp struct {
			UID   *int `json:"uid"`
			Value *int `json:"value"`
		}
		if err := json.Unmarshal(entry, &dp); err != nil || dp.UID == nil || dp.Value == nil {
			c.logger.Debug("skipping malformed datapoint", zap.ByteString("entry", entry))
			continue
		}
		uid := UID(*dp.UID)
		if !uid.Known() {
			continue
		}
		state[uid] = *dp.Value
	}
	return state, nil
}

// Write sets a single datapoint. It does not update any cached state.
func (c *Client) Write(ctx context.Context, uid UID, value int) error {
	c.logger.Debug("setting datapoint", zap.Stringer("uid", uid), zap.Int("value", value))
	_, err := c.authenticated(ctx, CmdSetDatapointValue, map[string]any{
		"uid":   int(uid),
		"value": value,
	})
	return err
}

// AvailableDatapoints returns the device's raw getavailabledatapoints answer
func (c *Client) AvailableDatapoints(ctx context.Context) (map[string]any, error) {
	raw, err := c.authenticated(ctx, CmdGetAvailableDatapoints, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, NewProtocolError("failed to parse available datapoints", err)
	}
	return out, nil
}

// login performs the login exchange for the session manager
func (c *Client) login(ctx context.Context) (string, error) {
	raw, err := c.exchange(ctx, CmdLogin, map[string]any{
		"username": c.creds.Username,
		"password": c.creds.Password,
	})
	if err != nil {
		if e, ok := AsError(err); ok && (e.Kind == KindDevice || e.Kind == KindAuth) {
			return "", NewAuthError(AuthCredentialsRejected, "login rejected", err)
		}
		return "", err
	}

	var data loginData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", NewProtocolError("failed to parse login response", err)
	}
	if data.ID.SessionID == "" {
		return "", NewProtocolError("login response has no sessionID", nil)
	}
	return data.ID.SessionID, nil
}

// authenticated runs a command with a session. When the device rejects the
// session it is invalidated and the command retried exactly once.
func (c *Client) authenticated(ctx context.Context, command string, data map[string]any) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		sess, err := c.sessions.EnsureSession(ctx)
		if err != nil {
			return nil, err
		}

		payload := make(map[string]any, len(data)+1)
		for k, v := range data {
			payload[k] = v
		}
		payload["sessionID"] = sess.Token

		raw, err := c.exchange(ctx, command, payload)
		if err == nil {
			return raw, nil
		}
		if !isSessionRejected(err) {
			return nil, err
		}

		c.sessions.release(sess.Token)
		if attempt >= 1 {
			return nil, NewAuthError(AuthSessionRejected, command+" rejected after re-login", err)
		}
		c.logger.Debug("session rejected, re-authenticating",
			zap.String("command", command),
			zap.String("session", sess.ShortToken()),
		)
	}
}

// isSessionRejected reports whether err is the device's auth-failure signal
func isSessionRejected(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindDevice:
		return IsAuthErrorCode(e.Code)
	case KindAuth:
		return e.StatusCode == http.StatusUnauthorized
	default:
		return false
	}
}

// exchange performs one POST to the API endpoint and unwraps the envelope
func (c *Client) exchange(ctx context.Context, command string, data map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, NewCommunicationError("request not sent", err)
	}

	body, err := json.Marshal(request{Command: command, Data: data})
	if err != nil {
		return nil, NewProtocolError("failed to encode request", err)
	}

	started := time.Now()
	raw, status, respBody, err := c.exchangeAttempt(ctx, body)
	elapsed := time.Since(started)
	c.recorder.Record(command, body, respBody, status, started, elapsed, err)

	if err != nil {
		c.logger.Debug("exchange failed",
			zap.String("command", command),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	c.logger.Debug("exchange complete",
		zap.String("command", command),
		zap.Duration("duration", elapsed),
	)
	return raw, nil
}

// exchangeAttempt sends body and returns the unwrapped data, the HTTP status
// and the raw response body
func (c *Client) exchangeAttempt(ctx context.Context, body []byte) (json.RawMessage, int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+APIPath, bytes.NewReader(body))
	if err != nil {
		return nil, 0, nil, NewCommunicationError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, nil, ClassifyNetworkError(err, c.creds.Host)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, nil, ClassifyNetworkError(err, c.creds.Host)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, resp.StatusCode, respBody, NewAuthError(AuthSessionRejected, "HTTP 401", nil)
	}
	if resp.StatusCode != http.StatusOK {
		e := NewHTTPStatusError(resp.StatusCode)
		e.Host = c.creds.Host
		return nil, resp.StatusCode, respBody, e
	}

	var envelope response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, resp.StatusCode, respBody, NewProtocolError("failed to parse response", err)
	}

	if !envelope.Success {
		if envelope.Error == nil {
			return nil, resp.StatusCode, respBody, NewDeviceError(0, "request failed")
		}
		msg := envelope.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, resp.StatusCode, respBody, NewDeviceError(envelope.Error.Code, msg)
	}

	if len(envelope.Data) == 0 {
		return json.RawMessage("{}"), resp.StatusCode, respBody, nil
	}
	return envelope.Data, resp.StatusCode, respBody, nil
}

// String describes the client for logs
func (c *Client) String() string {
	return fmt.Sprintf("intesis(%s)", c.creds.Host)
}
