// Package smpplog defines the logging interface used across the
// session, client and server layers, plus a logrus-backed default
// implementation.
package smpplog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is implemented by anything that can receive session
// diagnostics. InfoF covers routine traffic (binds, sends, closes);
// ErrorF covers protocol violations and connection failures.
type Logger interface {
	InfoF(msg string, params ...interface{})
	ErrorF(msg string, params ...interface{})
}

// DefaultLogger logs through a logrus.FieldLogger. The zero value has
// no underlying logger and panics on use; use Default() or New() to get
// a usable instance.
type DefaultLogger struct {
	log logrus.FieldLogger
}

// New wraps an existing logrus.FieldLogger, so callers can share
// fields (request id, pool name, ...) already attached upstream.
func New(log logrus.FieldLogger) *DefaultLogger {
	return &DefaultLogger{log: log}
}

// Default builds a DefaultLogger writing text-formatted entries to
// stderr at info level, the same defaults logrus ships with.
func Default() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{log: l}
}

// InfoF implements Logger interface.
func (dl *DefaultLogger) InfoF(msg string, params ...interface{}) {
	dl.log.Infof(msg, params...)
}

// ErrorF implements Logger interface.
func (dl *DefaultLogger) ErrorF(msg string, params ...interface{}) {
	dl.log.Errorf(msg, params...)
}

// Noop discards everything; useful in tests that don't want log noise.
type Noop struct{}

// InfoF implements Logger interface.
func (Noop) InfoF(string, ...interface{}) {}

// ErrorF implements Logger interface.
func (Noop) ErrorF(string, ...interface{}) {}
