package deviceapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		subtype   NetworkErrorSubtype
		retryable bool
	}{
		{
			name:      "timeout",
			err:       &url.Error{Op: "Post", URL: "http://10.0.0.5/api.cgi", Err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}}},
			subtype:   NetworkErrorTimeout,
			retryable: true,
		},
		{
			name:      "context deadline",
			err:       fmt.Errorf("waiting: %w", context.DeadlineExceeded),
			subtype:   NetworkErrorTimeout,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       &url.Error{Op: "Post", URL: "http://10.0.0.5/api.cgi", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
			subtype:   NetworkErrorConnectionRefused,
			retryable: true,
		},
		{
			name:      "host unreachable",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH},
			subtype:   NetworkErrorHostUnreachable,
			retryable: true,
		},
		{
			name:      "network unreachable",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ENETUNREACH},
			subtype:   NetworkErrorNetworkUnreachable,
			retryable: true,
		},
		{
			name:      "dns",
			err:       &url.Error{Op: "Post", URL: "http://nowhere.invalid/api.cgi", Err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}},
			subtype:   NetworkErrorDNS,
			retryable: false,
		},
		{
			name:      "generic",
			err:       errors.New("connection reset"),
			subtype:   NetworkErrorGeneral,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ClassifyNetworkError(tt.err, "10.0.0.5")
			if e == nil {
				t.Fatal("ClassifyNetworkError() = nil")
			}
			if e.Kind != KindCommunication {
				t.Errorf("Kind = %v, want %v", e.Kind, KindCommunication)
			}
			if e.NetworkSubtype != tt.subtype {
				t.Errorf("NetworkSubtype = %v, want %v", e.NetworkSubtype, tt.subtype)
			}
			if e.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", e.Retryable, tt.retryable)
			}
			if e.Host != "10.0.0.5" {
				t.Errorf("Host = %s, want 10.0.0.5", e.Host)
			}
			if !errors.Is(e, tt.err) && !errors.Is(tt.err, e.Err) {
				t.Errorf("classified error does not wrap %v", tt.err)
			}
		})
	}

	if ClassifyNetworkError(nil, "") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestKindHelpersWalkTheChain(t *testing.T) {
	comm := NewCommunicationError("login failed", context.DeadlineExceeded)
	transient := NewAuthError(AuthTransient, "login failed", comm)
	wrapped := fmt.Errorf("refresh: %w", transient)

	if !IsAuthError(wrapped) {
		t.Error("IsAuthError(wrapped) = false, want true")
	}
	if !IsCommunicationError(wrapped) {
		t.Error("IsCommunicationError(wrapped) = false, want true")
	}
	if !IsTimeout(wrapped) {
		t.Error("IsTimeout(wrapped) = false, want true")
	}
	if IsCredentialsRejected(wrapped) {
		t.Error("IsCredentialsRejected(wrapped) = true, want false")
	}
	if IsProtocolError(wrapped) || IsDeviceError(wrapped) {
		t.Error("unexpected protocol/device classification")
	}
	if IsAuthError(errors.New("plain")) {
		t.Error("IsAuthError(plain error) = true, want false")
	}
}

func TestErrorString(t *testing.T) {
	e := NewAuthError(AuthCredentialsRejected, "login rejected", NewDeviceError(1, "Invalid username or password"))
	got := e.Error()
	for _, want := range []string{"Authentication Error", "credentials rejected", "login rejected", "API error 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}

	if got := NewProtocolError("bad json", nil).Error(); got != "Protocol Error: bad json" {
		t.Errorf("Error() = %q, want %q", got, "Protocol Error: bad json")
	}
}

func TestSetupErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"bad credentials", NewAuthError(AuthCredentialsRejected, "login rejected", nil), SetupInvalidAuth},
		{"refused", &Error{Kind: KindCommunication, NetworkSubtype: NetworkErrorConnectionRefused}, SetupCannotConnect},
		{"timeout during login", NewAuthError(AuthTransient, "login failed", &Error{Kind: KindCommunication, NetworkSubtype: NetworkErrorTimeout}), SetupCannotConnect},
		{"dns", &Error{Kind: KindCommunication, NetworkSubtype: NetworkErrorDNS}, SetupInvalidHost},
		{"not an intesis", NewProtocolError("failed to parse response", nil), SetupInvalidHost},
		{"device", NewDeviceError(9, "busy"), SetupUnknown},
		{"other", errors.New("boom"), SetupUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SetupErrorCode(tt.err); got != tt.want {
				t.Errorf("SetupErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewAuthError(AuthCredentialsRejected, "x", nil), "Authentication failed - check credentials"},
		{&Error{Kind: KindCommunication, NetworkSubtype: NetworkErrorTimeout}, "Device not responding (timeout)"},
		{NewHTTPStatusError(503), "Device error (HTTP 503)"},
		{NewProtocolError("x", nil), "Unexpected response from device"},
		{NewDeviceError(7, "Value out of range"), "API error 7: Value out of range"},
		{errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		if got := GetShortErrorMessage(tt.err); got != tt.want {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	hint := GetTroubleshootingHint(NewAuthError(AuthCredentialsRejected, "x", nil))
	if !strings.Contains(hint, "admin:admin") {
		t.Errorf("credentials hint = %q, want default credentials mentioned", hint)
	}

	hint = GetTroubleshootingHint(&Error{Kind: KindCommunication, NetworkSubtype: NetworkErrorHostUnreachable, Host: "10.0.0.5"})
	if !strings.Contains(hint, "ping 10.0.0.5") {
		t.Errorf("unreachable hint = %q, want ping suggestion", hint)
	}

	if hint := GetTroubleshootingHint(errors.New("plain")); hint == "" {
		t.Error("hint for plain error should not be empty")
	}
}
