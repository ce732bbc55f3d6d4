package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/record"
)

// FileBackend writes records to a local file, with optional rotation.
// It serves as the fallback destination when no remote backend applies.
type FileBackend struct {
	mu     sync.Mutex
	writer io.WriteCloser // *os.File or *lumberjack.Logger
	format string         // "json" or "text"
	name   string
}

// NewFileBackend creates a file backend from its configuration.
func NewFileBackend(cfg config.Backend) (*FileBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file backend requires a path")
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		return nil, fmt.Errorf("invalid file backend format: %s", cfg.Format)
	}

	var maxSizeMB, maxAgeDays int

	if cfg.Rotation.MaxSize != "" {
		sizeBytes, err := config.ParseSize(cfg.Rotation.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid rotation.max_size '%s' for backend '%s': %w", cfg.Rotation.MaxSize, cfg.Name, err)
		}
		maxSizeMB = int(sizeBytes / (1024 * 1024))
		if sizeBytes > 0 && maxSizeMB == 0 {
			// lumberjack's minimum is 1MB
			applog.Default().Warn("Backend '%s': rotation.max_size %d bytes is below 1MB, using 1MB", cfg.Name, sizeBytes)
			maxSizeMB = 1
		}
	}

	if cfg.Rotation.MaxAge != "" {
		ageDuration, err := config.ParseDuration(cfg.Rotation.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("invalid rotation.max_age '%s' for backend '%s': %w", cfg.Rotation.MaxAge, cfg.Name, err)
		}
		maxAgeDays = int(ageDuration.Hours() / 24)
		if maxAgeDays <= 0 {
			applog.Default().Warn("Backend '%s': rotation.max_age '%s' is less than 1 day, using 1 day", cfg.Name, cfg.Rotation.MaxAge)
			maxAgeDays = 1
		}
	}

	var writer io.WriteCloser
	if maxSizeMB > 0 || maxAgeDays > 0 || cfg.Rotation.MaxBackups > 0 {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     maxAgeDays,
			Compress:   cfg.Rotation.Compress,
			LocalTime:  false,
		}
	} else {
		file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Path, err)
		}
		writer = file
	}

	return &FileBackend{
		writer: writer,
		format: cfg.Format,
		name:   cfg.Name,
	}, nil
}

// Send writes one record as a line in the configured format.
func (f *FileBackend) Send(rec map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var line []byte
	if f.format == "json" {
		var err error
		line, err = json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal log record to JSON: %w", err)
		}
	} else {
		line = formatText(rec)
	}
	line = append(line, '\n')

	if _, err := f.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	return nil
}

// formatText converts the record map into a single text line:
// [TIME] LEVEL: msg key=value key2=value2 ...
func formatText(rec map[string]interface{}) []byte {
	var sb strings.Builder

	sb.WriteString("[")
	sb.WriteString(recordTime(rec).UTC().Format("2006-01-02T15:04:05.000Z"))
	sb.WriteString("]")

	sb.WriteString(" ")
	sb.WriteString(recordLevel(rec).Upper())
	sb.WriteString(":")

	sb.WriteString(" ")
	sb.WriteString(getString(rec, record.FieldMsg, "-"))

	// Remaining fields, sorted for stable output
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k == record.FieldTime || k == record.FieldLevel || k == record.FieldMsg {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(formatValue(rec[k]))
	}

	return []byte(sb.String())
}

// formatValue converts different types to string for text logging.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, " ") {
			return strconv.Quote(v)
		}
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "<nil>"
	default:
		if jsonBytes, err := json.Marshal(v); err == nil {
			return string(jsonBytes)
		}
		return fmt.Sprintf("%v", v)
	}
}

// Close closes the underlying file writer.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writer != nil {
		return f.writer.Close()
	}
	return nil
}

// Name returns the backend's configured name.
func (f *FileBackend) Name() string {
	return f.name
}

var _ Backend = (*FileBackend)(nil)
