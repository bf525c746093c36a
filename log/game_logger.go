package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/rift/config"
)

// GameLogger is a leveled JSON logger writing to a set of appenders.
// Level checks are lock-free so disabled levels cost one atomic load.
//
// Example usage:
//
//	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, ConsoleAppender: true})
//	logger.Info().Str("role", "server").Int("port", 7777).Msg("listening")
type GameLogger struct {
	appenders         []LogAppender
	appenderMu        sync.RWMutex
	minLevel          atomic.Uint32
	callerSkip        atomic.Int32
	enabledCallerInfo atomic.Bool
	eventPool         *sync.Pool
	callerCache       sync.Map
	configMutex       sync.RWMutex
	currentConfig     *LogCfg
}

type callerInfo struct {
	file     string
	function string
	line     int
	str      string
}

func newCallerInfo(file, function string, line int) *callerInfo {
	return &callerInfo{
		file:     file,
		function: function,
		line:     line,
		str:      file + ":" + strconv.Itoa(line) + " " + function,
	}
}

func (c *callerInfo) String() string {
	return c.str
}

var _unknownCallerInfo = newCallerInfo("???", "???", 0)

// NewLogger creates a GameLogger. A nil cfg uses the defaults.
func NewLogger(cfg *LogCfg) *GameLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := &GameLogger{currentConfig: cfg}
	logger.minLevel.Store(uint32(cfg.LogLevel))
	logger.callerSkip.Store(int32(cfg.CallerSkip))
	logger.enabledCallerInfo.Store(cfg.EnabledCallerInfo)

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger
}

// NewLoggerWithConfigManager creates a logger that follows hot reloads of the
// "logger" configuration.
func NewLoggerWithConfigManager(cfg *LogCfg, configManager config.ConfigManager) *GameLogger {
	logger := NewLogger(cfg)
	if configManager != nil {
		configManager.AddChangeListener(logger)
	}
	return logger
}

// OnConfigChanged implements config.ConfigChangeListener.
func (x *GameLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}
	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}

	x.updateConfig(newLogCfg)

	x.appenderMu.RLock()
	appenders := append([]LogAppender(nil), x.appenders...)
	x.appenderMu.RUnlock()
	for _, appender := range appenders {
		if listener, ok := appender.(config.ConfigChangeListener); ok {
			if err := listener.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
				x.Error().Err(err).Msg("Failed to notify appender about config change")
			}
		}
	}
	return nil
}

// GetConfigName implements config.ConfigChangeListener.
func (x *GameLogger) GetConfigName() string {
	return "logger"
}

func (x *GameLogger) updateConfig(newCfg *LogCfg) {
	x.configMutex.Lock()
	defer x.configMutex.Unlock()

	x.minLevel.Store(uint32(newCfg.LogLevel))
	x.callerSkip.Store(int32(newCfg.CallerSkip))
	x.enabledCallerInfo.Store(newCfg.EnabledCallerInfo)
	x.currentConfig = newCfg
}

// GetCurrentConfig returns the configuration currently in effect.
func (x *GameLogger) GetCurrentConfig() *LogCfg {
	x.configMutex.RLock()
	defer x.configMutex.RUnlock()
	return x.currentConfig
}

// SetLevel changes the minimum level at runtime.
func (x *GameLogger) SetLevel(level Level) {
	x.minLevel.Store(uint32(level))
}

func (x *GameLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender adds an output destination.
func (x *GameLogger) AddAppender(appender LogAppender) {
	x.appenderMu.Lock()
	defer x.appenderMu.Unlock()
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *GameLogger) GetAppender() []LogAppender {
	x.appenderMu.RLock()
	defer x.appenderMu.RUnlock()
	return append([]LogAppender(nil), x.appenders...)
}

// Refresh flushes every appender.
func (x *GameLogger) Refresh() {
	for _, appender := range x.GetAppender() {
		appender.Refresh()
	}
}

func (x *GameLogger) IgnoreCheckLevel() bool {
	return false
}

func (x *GameLogger) newEvent() *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	return e
}

// OnEventEnd writes the finished line to all appenders and recycles the event.
// Fatal events panic after being written.
func (x *GameLogger) OnEventEnd(e *LogEvent) {
	x.appenderMu.RLock()
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}
	x.appenderMu.RUnlock()

	if e.level == FatalLevel {
		panic(strings.TrimSpace(e.buf.String()))
	}

	x.eventPool.Put(e)
}

func (x *GameLogger) Trace() *LogEvent {
	return x.log(TraceLevel)
}

func (x *GameLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

func (x *GameLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

func (x *GameLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

func (x *GameLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal logs and then panics. Reserved for unrecoverable startup errors.
func (x *GameLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// getCallerInfo resolves file:line of the code that called the logger.
// Results are cached per program counter.
func (x *GameLogger) getCallerInfo() *callerInfo {
	pc, file, line, ok := runtime.Caller(3 + int(x.callerSkip.Load()))
	if !ok {
		return _unknownCallerInfo
	}

	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	funcName := runtime.FuncForPC(pc).Name()
	function := funcName
	if dotIdx := strings.LastIndexByte(funcName, '.'); dotIdx != -1 {
		function = funcName[dotIdx+1:]
	}

	// keep "pkg/file.go"
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

func (x *GameLogger) log(level Level) *LogEvent {
	if !x.IgnoreCheckLevel() && !x.checkLevel(level) {
		return nil
	}

	e := x.newEvent()
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if x.enabledCallerInfo.Load() {
		e.Str("caller", x.getCallerInfo().String())
	}

	return e
}
