// Package logging provides structured logging for the sprinkler relay,
// controller and console.
//
// This package wraps a zap logger with package-level convenience functions so
// that every component logs through the same configured instance.
//
// # Log Levels
//
//   - Debug: frame bytes, handshake dumps, every relayed message
//   - Info: connections, registrations, schedule runs, zone toggles
//   - Warn: dropped messages, reconnect attempts, parse failures
//   - Error: failures that abort an operation (listener, persistence)
//
// # Structured Logging
//
//	logging.Info("Schedule fired",
//	    zap.String("schedule", s.Name),
//	    zap.Int("periods", len(s.ActivePeriods)),
//	)
//
// # Configuration
//
// Initialize logging at process startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When no level is given the SPRINKLER_LOG_LEVEL environment variable is
// consulted; if that is also empty, a no-op logger is installed.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
