//go:build !windows && !plan9

package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// fakeSyslog records which severity method received each message.
type fakeSyslog struct {
	infos    []string
	warnings []string
	errs     []string
}

func (f *fakeSyslog) Info(m string) error    { f.infos = append(f.infos, m); return nil }
func (f *fakeSyslog) Warning(m string) error { f.warnings = append(f.warnings, m); return nil }
func (f *fakeSyslog) Err(m string) error     { f.errs = append(f.errs, m); return nil }

func newTestCore(w syslogWriter) *syslogCore {
	encCfg := zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: "\t",
	}
	return &syslogCore{
		LevelEnabler: zapcore.InfoLevel,
		enc:          zapcore.NewConsoleEncoder(encCfg),
		w:            w,
	}
}

// TestSyslogSeverityMapping verifies each zap level reaches the matching
// syslog severity method.
func TestSyslogSeverityMapping(t *testing.T) {
	fake := &fakeSyslog{}
	core := newTestCore(fake)

	entries := []zapcore.Entry{
		{Level: zapcore.InfoLevel, Message: "reindexing started"},
		{Level: zapcore.WarnLevel, Message: "outside maintenance window"},
		{Level: zapcore.ErrorLevel, Message: "rebuild failed"},
	}
	for _, ent := range entries {
		if err := core.Write(ent, nil); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if len(fake.infos) != 1 || !strings.Contains(fake.infos[0], "reindexing started") {
		t.Errorf("expected one info line, got %v", fake.infos)
	}
	if len(fake.warnings) != 1 || !strings.Contains(fake.warnings[0], "outside maintenance window") {
		t.Errorf("expected one warning line, got %v", fake.warnings)
	}
	if len(fake.errs) != 1 || !strings.Contains(fake.errs[0], "rebuild failed") {
		t.Errorf("expected one error line, got %v", fake.errs)
	}
}

// TestSyslogWithFields verifies that fields added via With appear in the
// encoded line.
func TestSyslogWithFields(t *testing.T) {
	fake := &fakeSyslog{}
	core := newTestCore(fake)

	withDB := core.With([]zapcore.Field{{Key: "database", Type: zapcore.StringType, String: "appdb"}})
	if err := withDB.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: "scan complete"}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(fake.infos) != 1 {
		t.Fatalf("expected one info line, got %d", len(fake.infos))
	}
	if !strings.Contains(fake.infos[0], "appdb") {
		t.Errorf("expected field value in line, got %q", fake.infos[0])
	}
}

// TestSyslogCheckRespectsLevel verifies disabled levels are not written.
func TestSyslogCheckRespectsLevel(t *testing.T) {
	fake := &fakeSyslog{}
	core := newTestCore(fake)

	ent := zapcore.Entry{Level: zapcore.DebugLevel, Message: "noise"}
	if ce := core.Check(ent, nil); ce != nil {
		t.Error("expected debug entry to be rejected")
	}
}
