package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcFord/netlog/internal/level"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
app:
  name: test-app
`

func TestLoadConfigMinimal(t *testing.T) {
	cfg, err := LoadConfig(createTempConfigFile(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "test-app", cfg.App.Name)
	assert.Equal(t, "test-app", cfg.App.Service)
	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "WARN", cfg.AppLog.Level)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "X-Request-ID", cfg.RequestLog.RequestIDHeader)
	assert.Empty(t, cfg.Backends)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	_, err := LoadConfig(createTempConfigFile(t, "app: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfigMissingAppName(t *testing.T) {
	_, err := LoadConfig(createTempConfigFile(t, "app:\n  service: svc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestLoadConfigBackendDefaults(t *testing.T) {
	cfg, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
backends:
  - name: gl
    type: gelf
    enabled: true
    host: graylog.example.com
  - name: ibm
    type: ibm
    enabled: true
    ingestion_key: abc123
  - name: az
    type: azure
    enabled: true
    workspace_id: wid
    workspace_key: d2tleQ==
`))
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 3)

	gelf := cfg.Backends[0]
	assert.Equal(t, 12201, gelf.Port)
	assert.Equal(t, "udp", gelf.Protocol)
	assert.Equal(t, "none", gelf.CompressionType)

	ibm := cfg.Backends[1]
	assert.Equal(t, "https://logs.logdna.com/logs/ingest", ibm.URL)
	assert.Equal(t, "test-app", ibm.AppName)

	az := cfg.Backends[2]
	assert.Equal(t, "AppLogs", az.LogType)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GRAYLOG_HOST", "env-graylog.example.com")
	t.Setenv("GRAYLOG_PORT", "12202")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAENV")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "envsecret")

	cfg, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
backends:
  - name: gl
    type: gelf
    enabled: true
  - name: cw
    type: cloudwatch
    enabled: true
    log_group: grp
    log_stream: strm
`))
	require.NoError(t, err)

	assert.Equal(t, "env-graylog.example.com", cfg.Backends[0].Host)
	assert.Equal(t, 12202, cfg.Backends[0].Port)
	assert.Equal(t, "AKIAENV", cfg.Backends[1].AccessKeyID)
	assert.Equal(t, "envsecret", cfg.Backends[1].SecretAccessKey)
	assert.Equal(t, "us-east-1", cfg.Backends[1].Region)
}

func TestLoadConfigEnvDoesNotOverrideExplicit(t *testing.T) {
	t.Setenv("GRAYLOG_HOST", "env-graylog.example.com")

	cfg, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
backends:
  - name: gl
    type: gelf
    enabled: true
    host: explicit.example.com
`))
	require.NoError(t, err)
	assert.Equal(t, "explicit.example.com", cfg.Backends[0].Host)
}

func TestLoadConfigExplicitPortBeatsEnv(t *testing.T) {
	t.Setenv("GRAYLOG_PORT", "12202")

	cfg, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
backends:
  - name: gl
    type: gelf
    enabled: true
    host: graylog.example.com
    port: 12201
`))
	require.NoError(t, err)
	assert.Equal(t, 12201, cfg.Backends[0].Port)
}

func TestApplyDefaultsHandBuiltConfig(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")

	var cfg Config
	cfg.App.Name = "hand-built"
	cfg.Backends = []Backend{
		{Name: "ibm", Type: TypeIBM, IngestionKey: "k"},
		{Name: "az", Type: TypeAzure, WorkspaceID: "w", WorkspaceKey: "c2s="},
		{Name: "cw", Type: TypeCloudWatch, LogGroup: "grp", LogStream: "strm"},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://logs.logdna.com/logs/ingest", cfg.Backends[0].URL)
	assert.Equal(t, "AppLogs", cfg.Backends[1].LogType)
	assert.Equal(t, "eu-west-1", cfg.Backends[2].Region, "environment beats the region default")
}

func TestValidateBackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr string
	}{
		{
			name: "gelf missing host",
			backend: `
  - name: gl
    type: gelf
    enabled: true`,
			wantErr: "host is required",
		},
		{
			name: "gelf bad protocol",
			backend: `
  - name: gl
    type: gelf
    enabled: true
    host: h
    protocol: sctp`,
			wantErr: "invalid protocol",
		},
		{
			name: "file missing path",
			backend: `
  - name: f
    type: file
    enabled: true
    format: json`,
			wantErr: "path is required",
		},
		{
			name: "file bad format",
			backend: `
  - name: f
    type: file
    enabled: true
    path: /tmp/out.log
    format: xml`,
			wantErr: "invalid format",
		},
		{
			name: "cloudwatch missing group",
			backend: `
  - name: cw
    type: cloudwatch
    enabled: true
    log_stream: s`,
			wantErr: "log_group is required",
		},
		{
			name: "gcp missing project",
			backend: `
  - name: g
    type: gcp
    enabled: true`,
			wantErr: "project_id is required",
		},
		{
			name: "azure missing key",
			backend: `
  - name: az
    type: azure
    enabled: true
    workspace_id: wid`,
			wantErr: "workspace_key are required",
		},
		{
			name: "ibm missing key",
			backend: `
  - name: ib
    type: ibm
    enabled: true`,
			wantErr: "ingestion_key is required",
		},
		{
			name: "oci missing log id",
			backend: `
  - name: oc
    type: oci
    enabled: true`,
			wantErr: "log_id is required",
		},
		{
			name: "unknown type",
			backend: `
  - name: x
    type: splunk
    enabled: true`,
			wantErr: "unknown type",
		},
		{
			name: "bad level",
			backend: `
  - name: gl
    type: gelf
    enabled: true
    host: h
    level: verbose`,
			wantErr: "invalid level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "app:\n  name: test-app\nbackends:" + tt.backend + "\n"
			_, err := LoadConfig(createTempConfigFile(t, content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDuplicateBackendNames(t *testing.T) {
	_, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
backends:
  - name: same
    type: gelf
    enabled: true
    host: a
  - name: same
    type: gelf
    enabled: true
    host: b
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestValidateCORS(t *testing.T) {
	_, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
server:
  cors:
    enabled: true
    allowed_origins:
      - example.com
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must start with")
}

func TestValidateAppLogLevel(t *testing.T) {
	_, err := LoadConfig(createTempConfigFile(t, `
app:
  name: test-app
app_log:
  level: CHATTY
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid app_log.level")
}

func TestBackendMinLevel(t *testing.T) {
	b := Backend{}
	assert.Equal(t, level.Default, b.MinLevel())

	b.Level = "error"
	assert.Equal(t, level.Error, b.MinLevel())
}

func TestBackendHTTPTimeout(t *testing.T) {
	b := Backend{}
	assert.Equal(t, 30*time.Second, b.HTTPTimeout())

	b.Timeout = "5s"
	assert.Equal(t, 5*time.Second, b.HTTPTimeout())
}

func TestBackendCreateFlags(t *testing.T) {
	b := Backend{}
	assert.True(t, b.CreateGroup())
	assert.True(t, b.CreateStream())

	f := false
	b.CreateLogGroup = &f
	b.CreateLogStream = &f
	assert.False(t, b.CreateGroup())
	assert.False(t, b.CreateStream())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"10m", 10 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{" 2d ", 2 * 24 * time.Hour, false},
		{"", 0, true},
		{"-5m", 0, true},
		{"0s", 0, true},
		{"xd", 0, true},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"1024", 1024, false},
		{"1K", 1024, false},
		{"10KB", 10 * 1024, false},
		{"5M", 5 * 1024 * 1024, false},
		{"100MB", 100 * 1024 * 1024, false},
		{"2G", 2 * 1024 * 1024 * 1024, false},
		{"1gb", 1024 * 1024 * 1024, false},
		{"0", 0, false},
		{"", 0, true},
		{"-1K", 0, true},
		{"abc", 0, true},
		{"99999999999G", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}
