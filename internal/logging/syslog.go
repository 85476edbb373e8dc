//go:build !windows && !plan9

package logging

import (
	"log/syslog"

	"go.uber.org/zap/zapcore"
)

// syslogWriter is the subset of *syslog.Writer the core needs, split out so
// tests can substitute a recording fake.
type syslogWriter interface {
	Info(m string) error
	Warning(m string) error
	Err(m string) error
}

// syslogCore duplicates log entries to a syslog daemon. The daemon adds its
// own timestamp, so the entry is encoded without the time key.
type syslogCore struct {
	zapcore.LevelEnabler
	enc zapcore.Encoder
	w   syslogWriter
}

// newSyslogCore dials the local syslog daemon. An error means no daemon is
// reachable; the caller falls back to the console core alone.
func newSyslogCore(encCfg zapcore.EncoderConfig) (zapcore.Core, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_USER, syslogTag)
	if err != nil {
		return nil, err
	}
	encCfg.TimeKey = zapcore.OmitKey
	return &syslogCore{
		LevelEnabler: zapcore.InfoLevel,
		enc:          zapcore.NewConsoleEncoder(encCfg),
		w:            w,
	}, nil
}

func (c *syslogCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.enc = c.enc.Clone()
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	return &clone
}

func (c *syslogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *syslogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := buf.String()
	buf.Free()

	switch {
	case ent.Level >= zapcore.ErrorLevel:
		return c.w.Err(msg)
	case ent.Level == zapcore.WarnLevel:
		return c.w.Warning(msg)
	default:
		return c.w.Info(msg)
	}
}

func (c *syslogCore) Sync() error { return nil }
