// Package hnlog centralizes the structured logging sink used across the
// engine. Heal/degrade events log at Warn; tamper/replay/panic events log at
// Error, per the error handling policy.
package hnlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-wide logger. Tests may swap its output or level.
var Log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Degraded logs a heal/degrade event: silent to the caller except for this
// warning and the VOL_DEGRADED bit the caller sets alongside it.
func Degraded(msg string, fields logrus.Fields) {
	Log.WithFields(fields).Warn(msg)
}

// Tamper logs a tamper/replay/panic event. These always log critical and the
// caller always refuses or demotes the volume.
func Tamper(msg string, fields logrus.Fields) {
	Log.WithFields(fields).Error(msg)
}

// Info logs a routine lifecycle event (mount, format, unmount).
func Info(msg string, fields logrus.Fields) {
	Log.WithFields(fields).Info(msg)
}
