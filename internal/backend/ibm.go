package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/record"
)

// IBMBackend delivers records to IBM Cloud Logs through the LogDNA
// ingestion API.
type IBMBackend struct {
	name         string
	ingestionKey string
	hostname     string
	appName      string
	environment  string
	baseURL      string
	indexMeta    bool
	tags         string
	ip           string
	mac          string
	client       *http.Client
}

type ibmLine struct {
	Timestamp int64                  `json:"timestamp"`
	Line      string                 `json:"line"`
	App       string                 `json:"app"`
	Level     string                 `json:"level"`
	Env       string                 `json:"env,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type ibmPayload struct {
	Lines []ibmLine `json:"lines"`
}

// NewIBMBackend creates an IBM Cloud Logs backend from its configuration.
func NewIBMBackend(cfg config.Backend, environment string) (*IBMBackend, error) {
	if cfg.IngestionKey == "" {
		return nil, fmt.Errorf("ingestion_key is required for IBM backend")
	}

	hostname := cfg.Hostname
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "unknown"
		}
		hostname = h
	}

	return &IBMBackend{
		name:         cfg.Name,
		ingestionKey: cfg.IngestionKey,
		hostname:     hostname,
		appName:      cfg.AppName,
		environment:  environment,
		baseURL:      cfg.URL,
		indexMeta:    cfg.IndexMeta,
		tags:         strings.Join(cfg.Tags, ","),
		ip:           cfg.IP,
		mac:          cfg.MAC,
		client:       &http.Client{Timeout: cfg.HTTPTimeout()},
	}, nil
}

// Send posts one record as an ingestion line. Non-core record fields
// travel in the line's meta object.
func (b *IBMBackend) Send(rec map[string]interface{}) error {
	ts := recordTime(rec).UnixMilli()

	meta := make(map[string]interface{})
	for k, v := range rec {
		switch k {
		case record.FieldMsg, record.FieldTime, record.FieldLevel,
			record.FieldVersion, record.FieldName:
			continue
		}
		meta[k] = v
	}
	if b.indexMeta {
		meta["indexMeta"] = true
	}

	payload := ibmPayload{
		Lines: []ibmLine{{
			Timestamp: ts,
			Line:      getString(rec, record.FieldMsg, ""),
			App:       b.appName,
			Level:     recordLevel(rec).LogDNA(),
			Env:       b.environment,
			Meta:      meta,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	params := url.Values{}
	params.Set("hostname", b.hostname)
	params.Set("now", strconv.FormatInt(ts, 10))
	if b.ip != "" {
		params.Set("ip", b.ip)
	}
	if b.mac != "" {
		params.Set("mac", b.mac)
	}
	if b.tags != "" {
		params.Set("tags", b.tags)
	}

	req, err := http.NewRequest(http.MethodPost, b.baseURL+"?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(b.ingestionKey, "")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to ingestion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingestion endpoint returned status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no persistent state.
func (b *IBMBackend) Close() error {
	return nil
}

// Name returns the backend's configured name.
func (b *IBMBackend) Name() string {
	return b.name
}

var _ Backend = (*IBMBackend)(nil)
