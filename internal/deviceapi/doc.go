// Package deviceapi implements the local HTTP API of Intesis WiFi AC adapters.
//
// Every command is a JSON POST to /api.cgi:
//
//	{"command": "getdatapointvalue", "data": {"sessionID": "...", "uid": "all"}}
//
// and every answer is an envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": 5, "message": "..."}}
//
// # Sessions
//
// SessionManager owns the session token. Concurrent callers that need a
// session while none is valid share a single login exchange. When the device
// answers an authenticated command with error code 1 or 5 (or HTTP 401) the
// session is dropped and the command retried exactly once after a fresh login:
//
//	client := deviceapi.NewClient(deviceapi.Credentials{
//	    Host:     "192.168.1.50",
//	    Username: "admin",
//	    Password: "admin",
//	})
//
//	state, err := client.ReadAll(ctx)
//	if err != nil {
//	    log.Fatal(deviceapi.GetShortErrorMessage(err))
//	}
//	fmt.Println(state[deviceapi.UIDSetpoint]) // 220 = 22.0°C
//
// getinfo never needs a session:
//
//	info, err := client.GetDeviceInfo(ctx)
//
// # Errors
//
// Failures are returned as *Error with a Kind:
//   - KindAuth: credentials rejected, session rejected after re-login, or login
//     could not complete (AuthTransient, wrapping the cause)
//   - KindCommunication: unreachable, refused, DNS, timeout, non-200 status
//   - KindProtocol: the response was not the expected JSON shape
//   - KindDevice: the device rejected the command (for example out of range)
//
// The IsXxx helpers walk the whole wrap chain, so a login that timed out is
// both IsAuthError and IsTimeout. SetupErrorCode reduces a Validate failure to
// one of invalid_auth, cannot_connect, invalid_host or unknown.
//
// # Diagnostics
//
// The client records its most recent raw exchanges. Credentials, session IDs,
// MAC addresses and serial numbers are redacted before they are stored.
//
// # Thread Safety
//
// Client and SessionManager are safe for concurrent use.
package deviceapi
