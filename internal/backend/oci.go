package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/loggingingestion"

	"github.com/MarcFord/netlog/internal/config"
)

// ociClient is the subset of the ingestion client we use, mockable in tests.
type ociClient interface {
	PutLogs(ctx context.Context, request loggingingestion.PutLogsRequest) (loggingingestion.PutLogsResponse, error)
}

// Factory variable to allow mocking in tests
var ociClientFactory = func(cfg config.Backend) (ociClient, error) {
	var provider common.ConfigurationProvider
	if cfg.ConfigFile != "" {
		p, err := common.ConfigurationProviderFromFileWithProfile(cfg.ConfigFile, cfg.Profile, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load OCI config from '%s': %w", cfg.ConfigFile, err)
		}
		provider = p
	} else {
		provider = common.DefaultConfigProvider()
	}

	client, err := loggingingestion.NewLoggingClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCI logging client: %w", err)
	}
	return &client, nil
}

// OCIBackend delivers records to an Oracle Cloud Infrastructure custom log.
type OCIBackend struct {
	name    string
	client  ociClient
	logID   string
	source  string
	subject string
	timeout time.Duration
}

// NewOCIBackend creates an OCI Logging backend from its configuration.
func NewOCIBackend(cfg config.Backend) (*OCIBackend, error) {
	if cfg.LogID == "" {
		return nil, fmt.Errorf("log_id is required for OCI backend")
	}

	client, err := ociClientFactory(cfg)
	if err != nil {
		return nil, err
	}

	return &OCIBackend{
		name:    cfg.Name,
		client:  client,
		logID:   cfg.LogID,
		source:  cfg.Source,
		subject: cfg.Name,
		timeout: cfg.HTTPTimeout(),
	}, nil
}

// Send puts one record as a JSON log entry batch.
func (o *OCIBackend) Send(rec map[string]interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	now := recordTime(rec)
	req := loggingingestion.PutLogsRequest{
		LogId: common.String(o.logID),
		PutLogsDetails: loggingingestion.PutLogsDetails{
			Specversion: common.String("1.0"),
			LogEntryBatches: []loggingingestion.LogEntryBatch{
				{
					Entries: []loggingingestion.LogEntry{
						{
							Data: common.String(string(data)),
							Id:   common.String(uuid.NewString()),
							Time: &common.SDKTime{Time: now},
						},
					},
					Source:              common.String(o.source),
					Type:                common.String("application/json"),
					Subject:             common.String(o.subject),
					Defaultlogentrytime: &common.SDKTime{Time: now},
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if _, err := o.client.PutLogs(ctx, req); err != nil {
		return fmt.Errorf("failed to put logs: %w", err)
	}
	return nil
}

// Close is a no-op; the OCI client holds no persistent connection.
func (o *OCIBackend) Close() error {
	return nil
}

// Name returns the backend's configured name.
func (o *OCIBackend) Name() string {
	return o.name
}

var _ Backend = (*OCIBackend)(nil)
