// Package logging provides the default types.Logger implementation used
// when the caller does not inject one of its own. It follows the shape of
// the teacher's definition.DefaultLogger (a thin wrapper exposing
// Info/Warn/Error/Debug/Fatal plus formatted variants and a debug toggle)
// but backs it with logrus instead of the stdlib log package, so every run
// gets structured, leveled fields (component, rank, direction, step) for
// free.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// DefaultLogger wraps a *logrus.Entry to satisfy types.Logger.
type DefaultLogger struct {
	entry *logrus.Entry
	level *logrus.Logger
}

// NewDefaultLogger builds the default logger, writing to stderr as a text
// formatter (log sink configuration itself is out of scope, spec.md
// section 1; this is the fixed ambient choice).
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{entry: logrus.NewEntry(l), level: l}
}

func (d *DefaultLogger) Info(v ...interface{})                    { d.entry.Info(v...) }
func (d *DefaultLogger) Infof(format string, v ...interface{})     { d.entry.Infof(format, v...) }
func (d *DefaultLogger) Warn(v ...interface{})                     { d.entry.Warn(v...) }
func (d *DefaultLogger) Warnf(format string, v ...interface{})     { d.entry.Warnf(format, v...) }
func (d *DefaultLogger) Error(v ...interface{})                    { d.entry.Error(v...) }
func (d *DefaultLogger) Errorf(format string, v ...interface{})    { d.entry.Errorf(format, v...) }
func (d *DefaultLogger) Debug(v ...interface{})                    { d.entry.Debug(v...) }
func (d *DefaultLogger) Debugf(format string, v ...interface{})    { d.entry.Debugf(format, v...) }
func (d *DefaultLogger) Fatal(v ...interface{})                    { d.entry.Fatal(v...) }
func (d *DefaultLogger) Fatalf(format string, v ...interface{})    { d.entry.Fatalf(format, v...) }

func (d *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		d.level.SetLevel(logrus.DebugLevel)
	} else {
		d.level.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (d *DefaultLogger) WithField(key string, value interface{}) types.Logger {
	return &DefaultLogger{entry: d.entry.WithField(key, value), level: d.level}
}

var _ types.Logger = (*DefaultLogger)(nil)
