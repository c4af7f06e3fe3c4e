package deviceapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// Kind represents the category of error that occurred
type Kind int

const (
	// KindCommunication indicates a network-level failure (unreachable, refused, timeout, non-200 status)
	KindCommunication Kind = iota
	// KindAuth indicates a login or session failure
	KindAuth
	// KindProtocol indicates a malformed or unexpected response shape
	KindProtocol
	// KindDevice indicates the device understood the request and rejected it
	KindDevice
)

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindCommunication:
		return "Communication Error"
	case KindAuth:
		return "Authentication Error"
	case KindProtocol:
		return "Protocol Error"
	case KindDevice:
		return "Device Error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// AuthReason distinguishes auth failures by how they can be recovered
type AuthReason int

const (
	// AuthNone is used for errors that are not auth errors
	AuthNone AuthReason = iota
	// AuthCredentialsRejected means login was refused; needs user action
	AuthCredentialsRejected
	// AuthSessionRejected means the device refused a session even after a fresh login
	AuthSessionRejected
	// AuthTransient means login could not complete (network, malformed reply); retry later
	AuthTransient
)

// String returns a short name for the auth reason
func (r AuthReason) String() string {
	switch r {
	case AuthCredentialsRejected:
		return "credentials rejected"
	case AuthSessionRejected:
		return "session rejected"
	case AuthTransient:
		return "transient"
	default:
		return "none"
	}
}

// NetworkErrorSubtype provides more specific communication error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
	NetworkErrorHTTPStatus
)

// Error represents a failure talking to an Intesis device
type Error struct {
	Kind           Kind                // Category of error
	AuthReason     AuthReason          // Set when Kind is KindAuth
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Code           int                 // Device error code from the response body (if any)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific communication error type
	Host           string              // Device host (for context)
	Retryable      bool                // Whether the error is worth retrying later
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Kind == KindAuth && e.AuthReason != AuthNone {
		prefix = fmt.Sprintf("%s (%s)", prefix, e.AuthReason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a communication error
func ClassifyNetworkError(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:           KindCommunication,
			Message:        "request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Host:           host,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:           KindCommunication,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Host:           host,
			Retryable:      false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{
				Kind:           KindCommunication,
				Message:        "device refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Host:           host,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{
				Kind:           KindCommunication,
				Message:        "host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Host:           host,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{
				Kind:           KindCommunication,
				Message:        "network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Host:           host,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &Error{
		Kind:           KindCommunication,
		Message:        "network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Host:           host,
		Retryable:      true,
	}
}

// NewCommunicationError creates a communication error with automatic classification
func NewCommunicationError(message string, err error) *Error {
	classified := ClassifyNetworkError(err, "")
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &Error{
		Kind:      KindCommunication,
		Message:   message,
		Retryable: true,
	}
}

// NewHTTPStatusError creates a communication error for a non-200 response
func NewHTTPStatusError(statusCode int) *Error {
	return &Error{
		Kind:           KindCommunication,
		Message:        fmt.Sprintf("HTTP error %d", statusCode),
		StatusCode:     statusCode,
		NetworkSubtype: NetworkErrorHTTPStatus,
		Retryable:      statusCode >= 500,
	}
}

// NewAuthError creates an authentication error with the given reason
func NewAuthError(reason AuthReason, message string, err error) *Error {
	return &Error{
		Kind:       KindAuth,
		AuthReason: reason,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        err,
		Retryable:  reason == AuthTransient,
	}
}

// NewProtocolError creates a malformed-response error
func NewProtocolError(message string, err error) *Error {
	return &Error{
		Kind:      KindProtocol,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewDeviceError creates an error for a command the device rejected
func NewDeviceError(code int, message string) *Error {
	return &Error{
		Kind:      KindDevice,
		Message:   fmt.Sprintf("API error %d: %s", code, message),
		Code:      code,
		Retryable: false,
	}
}

// hasKind walks the wrap chain looking for an *Error of the given kind.
// An auth error caused by a network failure reports both kinds.
func hasKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// AsError returns the outermost *Error in the chain, if any
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	return hasKind(err, KindAuth)
}

// IsCredentialsRejected checks if the device refused the configured username/password
func IsCredentialsRejected(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == KindAuth && e.AuthReason == AuthCredentialsRejected {
			return true
		}
		err = e.Err
	}
	return false
}

// IsCommunicationError checks if an error is a communication error (including timeout)
func IsCommunicationError(err error) bool {
	return hasKind(err, KindCommunication)
}

// IsTimeout checks if an error is a communication timeout
func IsTimeout(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == KindCommunication && e.NetworkSubtype == NetworkErrorTimeout {
			return true
		}
		err = e.Err
	}
	return false
}

// IsProtocolError checks if an error is a protocol error
func IsProtocolError(err error) bool {
	return hasKind(err, KindProtocol)
}

// IsDeviceError checks if an error is a device rejection
func IsDeviceError(err error) bool {
	return hasKind(err, KindDevice)
}

// IsRetryable checks if an error is worth retrying later
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// Setup error codes, matching what a setup form shows the user.
const (
	SetupInvalidAuth   = "invalid_auth"
	SetupCannotConnect = "cannot_connect"
	SetupInvalidHost   = "invalid_host"
	SetupUnknown       = "unknown"
)

// SetupErrorCode maps a validation failure to an actionable setup error code.
// Bad credentials, unreachable devices and hosts that answer but are not
// Intesis adapters are reported separately.
func SetupErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCredentialsRejected(err):
		return SetupInvalidAuth
	case IsCommunicationError(err):
		if e, ok := AsError(err); ok && e.NetworkSubtype == NetworkErrorDNS {
			return SetupInvalidHost
		}
		return SetupCannotConnect
	case IsProtocolError(err):
		return SetupInvalidHost
	default:
		return SetupUnknown
	}
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	e, ok := AsError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	if IsCredentialsRejected(err) {
		return strings.Join([]string{
			"The device rejected the username or password.",
			"Troubleshooting:",
			"  • The factory default credentials are admin:admin",
			"  • Check whether the password was changed in the Intesis web UI",
			"  • Pass the password with --password or INTESIS_PASSWORD",
		}, "\n")
	}

	switch e.Kind {
	case KindAuth:
		return strings.Join([]string{
			"The device did not accept a session.",
			"Troubleshooting:",
			"  • Another client may be logged in and evicting sessions",
			"  • Power-cycle the adapter if this keeps happening",
		}, "\n")

	case KindCommunication:
		hint := []string{"Could not communicate with the device."}
		switch e.NetworkSubtype {
		case NetworkErrorTimeout:
			hint = append(hint, "The device did not respond in time.",
				"Troubleshooting:",
				"  • Check that the adapter is powered and its WiFi LED is on",
				"  • Try increasing the timeout with --timeout")
		case NetworkErrorConnectionRefused:
			hint = append(hint, "The host refused the connection.",
				"Troubleshooting:",
				"  • Verify the port (default is 80)",
				"  • Check that the local API is enabled on the adapter")
		case NetworkErrorDNS:
			hint = append(hint, "Could not resolve the device hostname.",
				"Troubleshooting:",
				"  • Use the IP address instead of the hostname",
				"  • Run 'intesis-cfg scan' to find the adapter")
		case NetworkErrorHostUnreachable, NetworkErrorNetworkUnreachable:
			hint = append(hint, "The device is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the device IP address is correct",
				"  • Check that you're on the same network as the device",
				"  • Try pinging the device: ping "+e.Host)
		case NetworkErrorHTTPStatus:
			hint = append(hint, fmt.Sprintf("The host answered with HTTP %d.", e.StatusCode),
				"Troubleshooting:",
				"  • Check that the address belongs to an Intesis adapter",
				"  • Reboot the adapter if it keeps returning errors")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the device is powered on")
		}
		return strings.Join(hint, "\n")

	case KindProtocol:
		return strings.Join([]string{
			"The device answered with an unexpected response.",
			"Troubleshooting:",
			"  • Check that the address belongs to an Intesis adapter",
			"  • Check the firmware version with 'intesis-cfg info'",
		}, "\n")

	case KindDevice:
		return fmt.Sprintf("The device rejected the command (code %d). Check the value is within the allowed range.", e.Code)

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	e, ok := AsError(err)
	if !ok {
		return err.Error()
	}

	if IsCredentialsRejected(err) {
		return "Authentication failed - check credentials"
	}

	switch e.Kind {
	case KindAuth:
		if IsCommunicationError(err) {
			return "Login failed - device unreachable"
		}
		return "Session rejected by device"
	case KindCommunication:
		switch e.NetworkSubtype {
		case NetworkErrorTimeout:
			return "Device not responding (timeout)"
		case NetworkErrorConnectionRefused:
			return "Device refused connection"
		case NetworkErrorDNS:
			return "Cannot resolve device hostname"
		case NetworkErrorHostUnreachable:
			return "Device unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check connection"
		case NetworkErrorHTTPStatus:
			return fmt.Sprintf("Device error (HTTP %d)", e.StatusCode)
		default:
			return "Network error - check connection"
		}
	case KindProtocol:
		return "Unexpected response from device"
	case KindDevice:
		return e.Message
	default:
		return e.Message
	}
}
