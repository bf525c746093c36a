// Package log is a small leveled JSON logger with pluggable appenders and
// configuration hot reload.
package log

import (
	"sync/atomic"

	"github.com/lcx/rift/config"
)

type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger atomic.Pointer[GameLogger]

func init() {
	_defaultLogger.Store(NewLogger(nil))
}

// AddAppender adds a new log appender to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.Load().AddAppender(appender)
}

// Refresh flushes all appenders of the default logger.
func Refresh() {
	_defaultLogger.Load().Refresh()
}

// SetDefaultLogger replaces the default logger used by the package-level functions.
func SetDefaultLogger(logger *GameLogger) {
	if logger != nil {
		_defaultLogger.Store(logger)
	}
}

// DefaultLogger returns the logger behind the package-level functions.
func DefaultLogger() *GameLogger {
	return _defaultLogger.Load()
}

// InitializeWithConfigManager loads the "logger" configuration and installs a
// hot-reloading default logger built from it.
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	logCfg := &LogCfg{}
	if err := configManager.LoadConfig("logger", logCfg); err != nil {
		return err
	}

	SetDefaultLogger(NewLoggerWithConfigManager(logCfg, configManager))
	return nil
}

// Initialize initializes the default logger from the process wide config manager.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

func Trace() *LogEvent {
	return _defaultLogger.Load().Trace()
}

func Debug() *LogEvent {
	return _defaultLogger.Load().Debug()
}

func Info() *LogEvent {
	return _defaultLogger.Load().Info()
}

func Warn() *LogEvent {
	return _defaultLogger.Load().Warn()
}

func Error() *LogEvent {
	return _defaultLogger.Load().Error()
}

// Fatal logs with the default logger and then panics.
func Fatal() *LogEvent {
	return _defaultLogger.Load().Fatal()
}
