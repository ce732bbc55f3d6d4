package backend

import (
	"fmt"
	"os"

	"gopkg.in/Graylog2/go-gelf.v2/gelf"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/record"
)

// Variables for factories to allow mocking in tests
var gelfUDPWriterFactory = gelf.NewUDPWriter
var gelfTCPWriterFactory = gelf.NewTCPWriter

var setUDPCompression = func(writer *gelf.UDPWriter, compType gelf.CompressType) {
	writer.CompressionType = compType
}

// GELFBackend delivers records to a Graylog server in GELF format.
type GELFBackend struct {
	name     string
	writer   gelf.Writer
	hostName string
}

// NewGELFBackend creates a GELF backend from its configuration.
func NewGELFBackend(cfg config.Backend) (*GELFBackend, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required for GELF backend")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("valid port is required for GELF backend")
	}

	hostName, err := os.Hostname()
	if err != nil {
		hostName = "unknown"
		applog.Default().Warn("Failed to get hostname: %v, using '%s'", err, hostName)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var writer gelf.Writer
	if cfg.Protocol == "tcp" {
		tcpWriter, err := gelfTCPWriterFactory(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create GELF TCP writer: %w", err)
		}
		writer = tcpWriter
	} else {
		udpWriter, err := gelfUDPWriterFactory(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create GELF UDP writer: %w", err)
		}
		switch cfg.CompressionType {
		case "gzip":
			setUDPCompression(udpWriter, gelf.CompressGzip)
		case "zlib":
			setUDPCompression(udpWriter, gelf.CompressZlib)
		default:
			setUDPCompression(udpWriter, gelf.CompressNone)
		}
		writer = udpWriter
	}

	return &GELFBackend{
		name:     cfg.Name,
		writer:   writer,
		hostName: hostName,
	}, nil
}

// Send converts a record to a GELF message and writes it.
func (g *GELFBackend) Send(rec map[string]interface{}) error {
	msg := &gelf.Message{
		Version:  "1.1",
		Host:     g.hostName,
		Short:    getString(rec, record.FieldMsg, "No message"),
		TimeUnix: gelfTimestamp(rec),
		Level:    recordLevel(rec).Syslog(),
		Extra:    make(map[string]interface{}),
	}

	if fullMsg, ok := rec["full_message"].(string); ok {
		msg.Full = fullMsg
	}

	for k, v := range rec {
		switch k {
		case record.FieldMsg, record.FieldTime, record.FieldLevel,
			record.FieldVersion, record.FieldHostname, "full_message":
			continue
		}

		// GELF requires additional fields to start with an underscore
		extraKey := k
		if extraKey[0] != '_' {
			extraKey = "_" + extraKey
		}

		// GELF doesn't support complex data types
		switch v := v.(type) {
		case string, float64, float32, int, int32, int64, uint, uint32, uint64, bool:
			msg.Extra[extraKey] = v
		default:
			msg.Extra[extraKey] = fmt.Sprintf("%v", v)
		}
	}

	return g.writer.WriteMessage(msg)
}

func gelfTimestamp(rec map[string]interface{}) float64 {
	t := recordTime(rec)
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Close closes the GELF writer.
func (g *GELFBackend) Close() error {
	return g.writer.Close()
}

// Name returns the backend's configured name.
func (g *GELFBackend) Name() string {
	return g.name
}
