//go:build windows || plan9

package logging

import (
	"errors"

	"go.uber.org/zap/zapcore"
)

// newSyslogCore is unavailable without a syslog daemon; the console core
// alone is used on these platforms.
func newSyslogCore(zapcore.EncoderConfig) (zapcore.Core, error) {
	return nil, errors.New("syslog not supported on this platform")
}
