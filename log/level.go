package log

import (
	"fmt"
	"strings"
)

// Level is the severity of a log event.
type Level uint32

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var _levelNames = [...]string{"trace", "debug", "info", "warn", "error", "fatal"}

func (l Level) String() string {
	if int(l) < len(_levelNames) {
		return _levelNames[l]
	}
	return "unknown"
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(s string) (Level, error) {
	for i, name := range _levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return DebugLevel, fmt.Errorf("unknown log level %q", s)
}
