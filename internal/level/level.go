// internal/level/level.go

// Package level defines the numeric severity scheme used in log records
// and its mappings onto the schemes the individual backends expect.
package level

import (
	"fmt"
	"strings"
)

// Level is a Bunyan-style numeric severity.
type Level int

const (
	Trace Level = 10
	Debug Level = 20
	Info  Level = 30
	Warn  Level = 40
	Error Level = 50
	Fatal Level = 60
)

// Default is the level assigned to records that carry none.
const Default = Info

var names = map[Level]string{
	Trace: "trace",
	Debug: "debug",
	Info:  "info",
	Warn:  "warn",
	Error: "error",
	Fatal: "fatal",
}

// String returns the lowercase level name. Unknown values round down to
// the nearest named level.
func (l Level) String() string {
	if name, ok := names[l]; ok {
		return name
	}
	switch {
	case l <= Trace:
		return "trace"
	case l <= Debug:
		return "debug"
	case l <= Info:
		return "info"
	case l <= Warn:
		return "warn"
	case l <= Error:
		return "error"
	default:
		return "fatal"
	}
}

// Parse converts a level name to a Level. Python-style aliases used by the
// supported backends (warning, critical) are accepted.
func Parse(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return Trace, nil
	case "debug":
		return Debug, nil
	case "info", "informational":
		return Info, nil
	case "warn", "warning":
		return Warn, nil
	case "error", "err":
		return Error, nil
	case "fatal", "critical", "crit":
		return Fatal, nil
	default:
		return 0, fmt.Errorf("unknown level name: %q", name)
	}
}

// FromValue coerces a record's level field (number or name) to a Level.
// Unrecognized values fall back to Default.
func FromValue(v interface{}) Level {
	switch n := v.(type) {
	case Level:
		return n
	case int:
		return Level(n)
	case int32:
		return Level(n)
	case int64:
		return Level(n)
	case float64:
		return Level(n)
	case string:
		if l, err := Parse(n); err == nil {
			return l
		}
	}
	return Default
}

// Syslog maps a level onto the syslog severities GELF uses.
func (l Level) Syslog() int32 {
	switch {
	case l >= Fatal:
		return 2 // critical
	case l >= Error:
		return 3
	case l >= Warn:
		return 4
	case l >= Info:
		return 6
	default:
		return 7 // debug
	}
}

// LogDNA maps a level onto the names the LogDNA ingestion API indexes.
func (l Level) LogDNA() string {
	switch {
	case l >= Fatal:
		return "Fatal"
	case l >= Error:
		return "Error"
	case l >= Warn:
		return "Warn"
	case l >= Info:
		return "Info"
	default:
		return "Debug"
	}
}

// Upper returns the uppercase level name, the form most HTTP backends log.
func (l Level) Upper() string {
	return strings.ToUpper(l.String())
}
