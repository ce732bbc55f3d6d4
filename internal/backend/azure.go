package backend

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarcFord/netlog/internal/config"
)

// azureDateFormat is the RFC1123 variant the Data Collector API signs with.
const azureDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

const azureAPIVersion = "2016-04-01"

// AzureBackend delivers records to an Azure Monitor Log Analytics
// workspace through the HTTP Data Collector API.
type AzureBackend struct {
	name         string
	workspaceID  string
	workspaceKey []byte
	logType      string
	endpoint     string
	client       *http.Client

	// now is swappable in tests to pin the signed date header
	now func() time.Time
}

// NewAzureBackend creates an Azure backend from its configuration.
func NewAzureBackend(cfg config.Backend) (*AzureBackend, error) {
	if cfg.WorkspaceID == "" || cfg.WorkspaceKey == "" {
		return nil, fmt.Errorf("workspace_id and workspace_key are required for Azure backend")
	}
	key, err := base64.StdEncoding.DecodeString(cfg.WorkspaceKey)
	if err != nil {
		return nil, fmt.Errorf("workspace_key is not valid base64: %w", err)
	}

	return &AzureBackend{
		name:         cfg.Name,
		workspaceID:  cfg.WorkspaceID,
		workspaceKey: key,
		logType:      cfg.LogType,
		endpoint: fmt.Sprintf("https://%s.ods.opinsights.azure.com/api/logs?api-version=%s",
			cfg.WorkspaceID, azureAPIVersion),
		client: &http.Client{Timeout: cfg.HTTPTimeout()},
		now:    time.Now,
	}, nil
}

// Send posts one record as a JSON array of a single object.
func (a *AzureBackend) Send(rec map[string]interface{}) error {
	body, err := json.Marshal([]map[string]interface{}{rec})
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	date := a.now().UTC().Format(azureDateFormat)
	signature, err := a.sign(len(body), date)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Log-Type", a.logType)
	req.Header.Set("x-ms-date", date)
	req.Header.Set("Authorization", fmt.Sprintf("SharedKey %s:%s", a.workspaceID, signature))

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to Azure workspace: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Azure workspace returned status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// sign computes the SharedKey signature over the Data Collector API's
// canonical string-to-sign.
func (a *AzureBackend) sign(contentLength int, date string) (string, error) {
	stringToSign := fmt.Sprintf("POST\n%d\napplication/json\nx-ms-date:%s\n/api/logs", contentLength, date)
	mac := hmac.New(sha256.New, a.workspaceKey)
	if _, err := mac.Write([]byte(stringToSign)); err != nil {
		return "", fmt.Errorf("failed to compute signature: %w", err)
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Close is a no-op; the HTTP client holds no persistent state.
func (a *AzureBackend) Close() error {
	return nil
}

// Name returns the backend's configured name.
func (a *AzureBackend) Name() string {
	return a.name
}

var _ Backend = (*AzureBackend)(nil)
