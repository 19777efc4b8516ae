// Package log provides the package-wide structured logger.
//
// It wraps a single logrus.Logger the way rclone's fs.Debugf/fs.Logf/
// fs.Errorf wrap their own logger: call sites pass a subject (may be nil)
// and a format string, and never touch the logrus API directly.
package log

import (
	"github.com/sirupsen/logrus"
)

var std = logrus.New()

// SetLevel adjusts the verbosity of the package-wide logger.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func fields(subject any) logrus.Fields {
	if subject == nil {
		return logrus.Fields{}
	}
	return logrus.Fields{"subject": subject}
}

// Debugf logs a debug-level message about subject (may be nil).
func Debugf(subject any, format string, args ...any) {
	std.WithFields(fields(subject)).Debugf(format, args...)
}

// Infof logs an info-level message about subject (may be nil).
func Infof(subject any, format string, args ...any) {
	std.WithFields(fields(subject)).Infof(format, args...)
}

// Errorf logs an error-level message about subject (may be nil).
func Errorf(subject any, format string, args ...any) {
	std.WithFields(fields(subject)).Errorf(format, args...)
}
