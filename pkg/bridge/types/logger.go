package types

// Logger is the logging facade every component depends on. It is injected
// rather than imported as a global, following the same shape as the
// teacher's definition.DefaultLogger so a caller can swap in any backend.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// ToggleDebug turns debug-level logging on or off and returns the new
	// value, mirroring the teacher's logger so tests can silence chatter.
	ToggleDebug(value bool) bool

	// WithField returns a derived Logger carrying an extra structured
	// field on every subsequent line (rank id, direction, step...).
	WithField(key string, value interface{}) Logger
}
