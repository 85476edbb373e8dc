// Package logging builds the process-wide logger.
//
// Output is line-oriented and timestamped at INFO/WARN/ERROR levels, written
// to standard error and duplicated to the system log when a syslog daemon is
// reachable. Every log line carries the session id so the lines of one
// invocation can be correlated in a shared syslog stream.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// syslogTag is the tag under which duplicated lines appear in the system log.
const syslogTag = "pgreindex"

// New constructs the logger. sessionID is attached to every line. The syslog
// sink is best effort: when no syslog daemon is reachable the logger still
// works with the console core alone.
func New(sessionID string) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: "\t",
	}

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapcore.InfoLevel,
	)

	core := console
	if sys, err := newSyslogCore(encCfg); err == nil {
		core = zapcore.NewTee(console, sys)
	}

	return zap.New(core).With(zap.String("session", sessionID))
}
