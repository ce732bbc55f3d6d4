package backend

import (
	"context"
	"fmt"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/level"
	"github.com/MarcFord/netlog/internal/record"
)

// gcpLogger is the subset of *logging.Logger we use, mockable in tests.
type gcpLogger interface {
	Log(e logging.Entry)
}

// Factory variable to allow mocking in tests
var gcpClientFactory = func(ctx context.Context, cfg config.Backend) (gcpLogger, func() error, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := logging.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Cloud Logging client: %w", err)
	}
	client.OnError = func(err error) {
		applog.Default().Error("Cloud Logging backend '%s': %v", cfg.Name, err)
	}

	var loggerOpts []logging.LoggerOption
	if len(cfg.Labels) > 0 {
		loggerOpts = append(loggerOpts, logging.CommonLabels(cfg.Labels))
	}
	return client.Logger(cfg.LogName, loggerOpts...), client.Close, nil
}

// GCPBackend delivers records to Google Cloud Logging.
type GCPBackend struct {
	name    string
	logger  gcpLogger
	closeFn func() error
}

// NewGCPBackend creates a Cloud Logging backend from its configuration.
func NewGCPBackend(cfg config.Backend) (*GCPBackend, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required for GCP backend")
	}

	lg, closeFn, err := gcpClientFactory(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	return &GCPBackend{
		name:    cfg.Name,
		logger:  lg,
		closeFn: closeFn,
	}, nil
}

// Send buffers one entry for asynchronous delivery. The client batches
// and flushes on its own; send errors surface through OnError.
func (g *GCPBackend) Send(rec map[string]interface{}) error {
	g.logger.Log(logging.Entry{
		Timestamp: recordTime(rec),
		Severity:  gcpSeverity(recordLevel(rec)),
		Payload:   record.Clone(rec),
	})
	return nil
}

// gcpSeverity maps a record severity onto Cloud Logging's scale.
func gcpSeverity(l level.Level) logging.Severity {
	switch {
	case l >= level.Fatal:
		return logging.Critical
	case l >= level.Error:
		return logging.Error
	case l >= level.Warn:
		return logging.Warning
	case l >= level.Info:
		return logging.Info
	default:
		return logging.Debug
	}
}

// Close flushes pending entries and releases the client.
func (g *GCPBackend) Close() error {
	if g.closeFn != nil {
		return g.closeFn()
	}
	return nil
}

// Name returns the backend's configured name.
func (g *GCPBackend) Name() string {
	return g.name
}

var _ Backend = (*GCPBackend)(nil)
