// Package toolpipezap adapts a zap logger to toolpipe.Logger.
package toolpipezap

import (
	"go.uber.org/zap"

	"github.com/skosovsky/toolpipe"
)

// Logger forwards toolpipe's key-value logging to a zap.SugaredLogger.
type Logger struct {
	s *zap.SugaredLogger
}

// New wraps l. A nil l yields a no-op logger.
func New(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Logger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

var _ toolpipe.Logger = (*Logger)(nil)
