package deviceapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/muurk/intesis/internal/deviceapi/devicetest"
)

func newTestClient(t *testing.T, dev *devicetest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithBaseURL(dev.URL), WithRateLimit(rate.Inf, 1)}
	return NewClient(Credentials{Host: "intesis.test", Username: "admin", Password: "admin"}, append(base, opts...)...)
}

func TestBaseURLFor(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"192.168.1.50", 80, "http://192.168.1.50"},
		{"192.168.1.50", 0, "http://192.168.1.50"},
		{"192.168.1.50", 8080, "http://192.168.1.50:8080"},
		{"192.168.1.50:8081", 80, "http://192.168.1.50:8081"},
		{"http://intesis.local/", 80, "http://intesis.local"},
		{"fe80::1", 8080, "http://[fe80::1]:8080"},
		{"fe80::1", 80, "http://[fe80::1]"},
	}

	for _, tt := range tests {
		if got := BaseURLFor(tt.host, tt.port); got != tt.want {
			t.Errorf("BaseURLFor(%q, %d) = %s, want %s", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Credentials{Host: "192.168.1.50", Username: "admin", Password: "admin"})

	if c.BaseURL != "http://192.168.1.50" {
		t.Errorf("BaseURL = %s, want http://192.168.1.50", c.BaseURL)
	}
	if c.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.HTTPClient.Timeout, DefaultTimeout)
	}
	if c.Host() != "192.168.1.50" {
		t.Errorf("Host() = %s, want 192.168.1.50", c.Host())
	}
	if c.Sessions() == nil {
		t.Error("Sessions() should not be nil")
	}
}

func TestGetDeviceInfoWithoutLogin(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	info, err := c.GetDeviceInfo(context.Background())
	if err != nil {
		t.Fatalf("GetDeviceInfo() error = %v", err)
	}

	if info.Model != "INWMPUNI001I000" {
		t.Errorf("Model = %s, want INWMPUNI001I000", info.Model)
	}
	if info.Serial() != "SN1234567" {
		t.Errorf("Serial() = %s, want SN1234567", info.Serial())
	}
	if info.RSSI != -58 {
		t.Errorf("RSSI = %d, want -58", info.RSSI)
	}
	if !info.ACConnected() || !info.WiFiConnected() || info.CloudConnected() {
		t.Errorf("connectivity = ac:%v wifi:%v cloud:%v, want true true false",
			info.ACConnected(), info.WiFiConnected(), info.CloudConnected())
	}
	if got := dev.Calls(CmdLogin); got != 0 {
		t.Errorf("login calls = %d, want 0", got)
	}
}

func TestReadAllOmitsUnknownUIDs(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()
	dev.SetValue(99, 7)

	c := newTestClient(t, dev)
	state, err := c.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	if _, ok := state[UID(99)]; ok {
		t.Error("state contains unknown uid 99")
	}
	if state[UIDSetpoint] != 220 {
		t.Errorf("setpoint = %d, want 220", state[UIDSetpoint])
	}
	if state[UIDMinTemp] != 180 {
		t.Errorf("min temp = %d, want 180", state[UIDMinTemp])
	}
	if len(state) != 13 {
		t.Errorf("len(state) = %d, want 13", len(state))
	}
}

func TestReadAllReusesSession(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	for i := 0; i < 3; i++ {
		if _, err := c.ReadAll(context.Background()); err != nil {
			t.Fatalf("ReadAll() #%d error = %v", i, err)
		}
	}

	if got := dev.Calls(CmdLogin); got != 1 {
		t.Errorf("login calls = %d, want 1", got)
	}
}

func TestWriteAfterSessionExpiredRelogsTransparently(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	ctx := context.Background()
	if _, err := c.ReadAll(ctx); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	dev.ExpireSessions()

	if err := c.Write(ctx, UIDSetpoint, 230); err != nil {
		t.Fatalf("Write() error = %v, want transparent re-login", err)
	}

	if got := dev.Calls(CmdLogin); got != 2 {
		t.Errorf("login calls = %d, want 2", got)
	}
	if got := dev.Calls(CmdSetDatapointValue); got != 2 {
		t.Errorf("setdatapointvalue calls = %d, want 2", got)
	}
	if v, _ := dev.Value(int(UIDSetpoint)); v != 230 {
		t.Errorf("device setpoint = %d, want 230", v)
	}
}

func TestAuthFailureRetriesExactlyOnce(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	ctx := context.Background()
	if _, err := c.ReadAll(ctx); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	dev.RejectSessions(2)
	_, err := c.ReadAll(ctx)
	if err == nil {
		t.Fatal("ReadAll() error = nil, want AuthError")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}
	if e, _ := AsError(err); e.AuthReason != AuthSessionRejected {
		t.Errorf("AuthReason = %v, want %v", e.AuthReason, AuthSessionRejected)
	}
	if IsCredentialsRejected(err) {
		t.Error("session rejection reported as credentials rejected")
	}

	// one successful read, then the original attempt and exactly one retry
	if got := dev.Calls(CmdGetDatapointValue); got != 3 {
		t.Errorf("getdatapointvalue calls = %d, want 3", got)
	}
	if got := dev.Calls(CmdLogin); got != 2 {
		t.Errorf("login calls = %d, want 2", got)
	}
}

func TestAuthFailureRecoveredBySingleRetry(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	dev.RejectSessions(1)

	if _, err := c.ReadAll(context.Background()); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if got := dev.Calls(CmdGetDatapointValue); got != 2 {
		t.Errorf("getdatapointvalue calls = %d, want 2", got)
	}
}

func TestCredentialsRejected(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()
	dev.SetCredentials("admin", "secret")

	c := newTestClient(t, dev)
	_, err := c.ReadAll(context.Background())
	if !IsCredentialsRejected(err) {
		t.Fatalf("IsCredentialsRejected(%v) = false, want true", err)
	}
	if IsRetryable(err) {
		t.Error("credentials rejection should not be retryable")
	}
	if got := SetupErrorCode(err); got != SetupInvalidAuth {
		t.Errorf("SetupErrorCode() = %s, want %s", got, SetupInvalidAuth)
	}
	if got := dev.Calls(CmdGetDatapointValue); got != 0 {
		t.Errorf("getdatapointvalue calls = %d, want 0", got)
	}
}

func TestWriteDeviceError(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	err := c.Write(context.Background(), UIDSetpoint, 350)
	if !IsDeviceError(err) {
		t.Fatalf("IsDeviceError(%v) = false, want true", err)
	}
	if e, _ := AsError(err); e.Code != devicetest.CodeOutOfRange {
		t.Errorf("Code = %d, want %d", e.Code, devicetest.CodeOutOfRange)
	}
	if got := dev.Calls(CmdSetDatapointValue); got != 1 {
		t.Errorf("setdatapointvalue calls = %d, want 1 (device errors are not retried)", got)
	}
}

func TestReadAllMalformedResponse(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	ctx := context.Background()
	if _, err := c.Sessions().EnsureSession(ctx); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}

	dev.MalformedNext(CmdGetDatapointValue)
	_, err := c.ReadAll(ctx)
	if !IsProtocolError(err) {
		t.Errorf("IsProtocolError(%v) = false, want true", err)
	}
}

func TestHTTPStatusIsCommunicationError(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	dev.StatusNext(CmdGetInfo, http.StatusInternalServerError)

	_, err := c.GetDeviceInfo(context.Background())
	if !IsCommunicationError(err) {
		t.Fatalf("IsCommunicationError(%v) = false, want true", err)
	}
	if e, _ := AsError(err); e.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", e.StatusCode)
	}
}

func TestRequestTimeout(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()
	dev.SetResponseDelay(500 * time.Millisecond)

	c := newTestClient(t, dev, WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := c.GetDeviceInfo(context.Background())
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout(%v) = false, want true", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("call took %v, want it bounded by the timeout", elapsed)
	}
}

func TestLoginTransientFailure(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	dev.StatusNext(CmdLogin, http.StatusServiceUnavailable)

	_, err := c.ReadAll(context.Background())
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}
	if !IsCommunicationError(err) {
		t.Errorf("IsCommunicationError(%v) = false, want true", err)
	}
	if IsCredentialsRejected(err) {
		t.Error("transient login failure reported as credentials rejected")
	}
	if e, _ := AsError(err); e.AuthReason != AuthTransient {
		t.Errorf("AuthReason = %v, want %v", e.AuthReason, AuthTransient)
	}
}

func TestUnreachableDevice(t *testing.T) {
	c := NewClient(Credentials{Host: "127.0.0.1", Username: "admin", Password: "admin"},
		WithBaseURL("http://127.0.0.1:1"),
		WithRateLimit(rate.Inf, 1),
		WithTimeout(2*time.Second),
	)

	_, err := c.Validate(context.Background())
	if !IsCommunicationError(err) {
		t.Fatalf("IsCommunicationError(%v) = false, want true", err)
	}
	if got := SetupErrorCode(err); got != SetupCannotConnect {
		t.Errorf("SetupErrorCode() = %s, want %s", got, SetupCannotConnect)
	}
}

func TestValidate(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	ctx := context.Background()
	if _, err := c.Sessions().EnsureSession(ctx); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}

	info, err := c.Validate(ctx)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if info.Serial() != "SN1234567" {
		t.Errorf("Serial() = %s, want SN1234567", info.Serial())
	}
	// Validate always logs in again to prove the credentials
	if got := dev.Calls(CmdLogin); got != 2 {
		t.Errorf("login calls = %d, want 2", got)
	}
}

func TestAvailableDatapoints(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := newTestClient(t, dev)
	out, err := c.AvailableDatapoints(context.Background())
	if err != nil {
		t.Fatalf("AvailableDatapoints() error = %v", err)
	}
	if _, ok := out["dp"]; !ok {
		t.Errorf("AvailableDatapoints() = %v, want dp key", out)
	}
}

func TestExchangesAreRedacted(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()
	dev.SetCredentials("installer", "hunter2")

	c := NewClient(Credentials{Host: "intesis.test", Username: "installer", Password: "hunter2"},
		WithBaseURL(dev.URL), WithRateLimit(rate.Inf, 1))
	ctx := context.Background()
	if _, err := c.ReadAll(ctx); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if _, err := c.GetDeviceInfo(ctx); err != nil {
		t.Fatalf("GetDeviceInfo() error = %v", err)
	}

	exchanges := c.Exchanges()
	if len(exchanges) != 3 {
		t.Fatalf("len(Exchanges()) = %d, want 3", len(exchanges))
	}
	if exchanges[0].Command != CmdLogin {
		t.Errorf("first exchange = %s, want %s", exchanges[0].Command, CmdLogin)
	}

	out, err := json.Marshal(exchanges)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, secret := range []string{"installer", "hunter2", "SN1234567", "CC:3F:1D:01:02:03"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("diagnostics leak %q", secret)
		}
	}

	session, ok := c.Sessions().Current()
	if !ok {
		t.Fatal("no current session")
	}
	if strings.Contains(string(out), session.Token) {
		t.Error("diagnostics leak the session token")
	}
}
