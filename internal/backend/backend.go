package backend

import (
	"fmt"
	"time"

	"github.com/MarcFord/netlog/internal/level"
	"github.com/MarcFord/netlog/internal/record"
)

// Backend is the interface implemented by every log destination.
type Backend interface {
	// Send delivers a single log record to the destination.
	Send(rec map[string]interface{}) error
	// Close releases resources held by the backend.
	Close() error
	// Name returns the configured name of the backend.
	Name() string
}

// getString fetches a string field from a record, formatting non-string
// values, or returns defaultValue when absent.
func getString(rec map[string]interface{}, key, defaultValue string) string {
	if val, ok := rec[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", val)
	}
	return defaultValue
}

// recordLevel extracts the record's severity, defaulting when missing or
// malformed.
func recordLevel(rec map[string]interface{}) level.Level {
	v, ok := rec[record.FieldLevel]
	if !ok {
		return level.Default
	}
	return level.FromValue(v)
}

// recordTime extracts the record's timestamp, falling back to now. The
// time field carries RFC3339Nano per the Bunyan record format.
func recordTime(rec map[string]interface{}) time.Time {
	if v, ok := rec[record.FieldTime]; ok {
		switch t := v.(type) {
		case time.Time:
			return t
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return parsed
			}
		case float64:
			sec := int64(t)
			return time.Unix(sec, int64((t-float64(sec))*1e9))
		case int64:
			return time.Unix(t, 0)
		}
	}
	return time.Now().UTC()
}
