package log

import "fmt"

// LogCfg is the logger configuration, loaded by the config manager under the
// name "logger" and hot reloaded on change.
type LogCfg struct {
	// LogPath is the target file for the file appender.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written. 0=trace .. 5=fatal.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the log file once it grows past this size. 0 disables rotation.
	FileSplitMB int `mapstructure:"splitmb"`

	// CallerSkip is the number of extra stack frames to skip for caller information.
	CallerSkip int `mapstructure:"callerSkip"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName implements config.Config.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate implements config.Config.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel > FatalLevel {
		return fmt.Errorf("invalid log level %d", cfg.LogLevel)
	}
	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("path cannot be empty when fileAppender is enabled")
	}
	if cfg.FileSplitMB < 0 {
		return fmt.Errorf("splitmb cannot be negative")
	}
	return nil
}

var _defaultCfg = &LogCfg{
	LogPath:         "./rift.log",
	LogLevel:        InfoLevel,
	FileSplitMB:     50,
	CallerSkip:      1,
	FileAppender:    false,
	ConsoleAppender: true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
