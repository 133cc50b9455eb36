package logger

import "go.uber.org/atomic"

type holder struct{ l Logger }

var defLogger = newDefault()

func newDefault() *atomic.Pointer[holder] {
	var p atomic.Pointer[holder]
	p.Store(&holder{l: NewSlog(InfoLevel, false)})

	return &p
}

// SetDefault replaces the process-wide default logger. Loggers derived
// earlier with With keep the previous one.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&holder{l: l})
}

// GetLogger returns the process-wide default logger.
func GetLogger() Logger {
	return defLogger.Load().l
}

func Debug(msg string, keysAndValues ...any) {
	GetLogger().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	GetLogger().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	GetLogger().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	GetLogger().Error(msg, keysAndValues...)
}

// SetLevel sets the level of the default logger.
func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
