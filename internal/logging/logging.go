// Package logging configures the process logger and hands out per-component
// loggers backed by commonlog.
package logging

import (
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

const root = "rbdrive"

// Configure sets the log verbosity and destination. An empty path logs to stderr.
func Configure(verbosity int, path string) {
	var p *string
	if path != "" {
		p = &path
	}
	commonlog.Configure(verbosity, p)
}

// Logger is a named component logger. It resolves the backend logger on every
// call, so loggers created at package init honor a later Configure.
type Logger struct {
	name string
}

// For returns the logger for a component.
func For(component string) Logger {
	return Logger{name: root + "." + component}
}

func (l Logger) Name() string { return l.name }

func (l Logger) Debugf(format string, args ...any) {
	commonlog.GetLogger(l.name).Debugf(format, args...)
}

func (l Logger) Infof(format string, args ...any) {
	commonlog.GetLogger(l.name).Infof(format, args...)
}

func (l Logger) Noticef(format string, args ...any) {
	commonlog.GetLogger(l.name).Noticef(format, args...)
}

func (l Logger) Warningf(format string, args ...any) {
	commonlog.GetLogger(l.name).Warningf(format, args...)
}

func (l Logger) Errorf(format string, args ...any) {
	commonlog.GetLogger(l.name).Errorf(format, args...)
}
