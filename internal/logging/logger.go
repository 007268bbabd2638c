package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar selects the level when none is passed to Initialize.
// Valid values: "debug", "info", "warn", "error".
const LogLevelEnvVar = "SPRINKLER_LOG_LEVEL"

// maxDump bounds the bytes rendered by the hex and ascii dumps.
const maxDump = 256

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Initialize installs the process logger at level. An empty level falls back
// to SPRINKLER_LOG_LEVEL; when both are empty logging is silent.
//
// Output goes to stderr so command output on stdout stays parseable.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	level = strings.ToLower(strings.TrimSpace(level))

	if level == "" {
		setLogger(zap.NewNop())
		return nil
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	setLogger(built)
	return nil
}

func setLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// GetLogger returns the process logger.
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogConnection logs a relay connection lifecycle event.
func LogConnection(connID string, remoteAddr string, event string) {
	Info("Connection event",
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogMessage logs an application message at debug level. direction is
// "received" or "sent"; peer names the role or endpoint.
func LogMessage(direction string, peer string, data []byte) {
	l := GetLogger()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug("Message",
		zap.String("direction", direction),
		zap.String("peer", peer),
		zap.Int("length", len(data)),
		zap.String("content", asciiDump(data)),
	)
}

// LogRawBytes logs a byte dump at debug level. Used for handshakes and
// frames that fail to decode.
func LogRawBytes(label string, data []byte) {
	l := GetLogger()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) > maxDump {
		return hex.EncodeToString(data[:maxDump]) + "..."
	}
	return hex.EncodeToString(data)
}

// asciiDump renders data with non-printable bytes replaced by '.'.
func asciiDump(data []byte) string {
	truncated := len(data) > maxDump
	if truncated {
		data = data[:maxDump]
	}

	var b strings.Builder
	b.Grow(len(data) + 3)
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	if truncated {
		b.WriteString("...")
	}
	return b.String()
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
