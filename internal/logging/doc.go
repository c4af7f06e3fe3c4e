// Package logging provides structured logging for the Intesis tools.
//
// This package wraps a global zap logger. The CLI stays silent unless
// INTESIS_LOG_LEVEL is set; the bridge daemon always initializes a level.
//
// # Log Levels
//
//   - Debug: request/response exchanges, MQTT payloads, reconcile retries
//   - Info: startup, device identity, values corrected by the device
//   - Warn: failed writes, failed polls, device unavailable
//   - Error: startup failures, broker errors
//
// # Components
//
// Each component takes an injected *zap.Logger and defaults to a named child
// of the global logger:
//
//	logger := logging.Named("mqtt")
//	logger.Info("connected to broker", zap.String("broker", url))
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// INTESIS_LOG_FORMAT=json switches to the JSON encoder for log shippers.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has run.
package logging
