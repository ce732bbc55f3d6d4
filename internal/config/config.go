package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/MarcFord/netlog/internal/level"
)

// Backend types understood by the dispatcher.
const (
	TypeGELF       = "gelf"
	TypeCloudWatch = "cloudwatch"
	TypeGCP        = "gcp"
	TypeAzure      = "azure"
	TypeIBM        = "ibm"
	TypeOCI        = "oci"
	TypeFile       = "file"
)

// Rotation defines parameters for log file rotation.
type Rotation struct {
	MaxSize    string `yaml:"max_size,omitempty"` // e.g. "100MB", "50k"
	MaxAge     string `yaml:"max_age,omitempty"`  // e.g. "7d", "2w"
	MaxBackups int    `yaml:"max_backups,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// Retry controls the resilience wrapper around remote backend sends.
type Retry struct {
	Disabled   bool   `yaml:"disabled,omitempty"`
	MaxRetries uint64 `yaml:"max_retries,omitempty"` // 0 means the default
}

// Backend represents a single log destination configuration.
// Only the fields relevant to its Type are consulted.
type Backend struct {
	Name    string `yaml:"name" validate:"required"`
	Type    string `yaml:"type" validate:"required"`
	Enabled bool   `yaml:"enabled"`

	// Environments lists glob patterns of application environments in
	// which the backend is active. Empty means every environment.
	Environments []string `yaml:"environments,omitempty"`

	// Level is the minimum severity forwarded to this backend.
	Level string `yaml:"level,omitempty"`

	Retry Retry `yaml:"retry,omitempty"`

	// GELF specific
	Host            string `yaml:"host,omitempty"`
	Port            int    `yaml:"port,omitempty"`
	Protocol        string `yaml:"protocol,omitempty"`         // udp or tcp, default udp
	CompressionType string `yaml:"compression_type,omitempty"` // gzip, zlib, none

	// File specific
	Path     string   `yaml:"path,omitempty"`
	Format   string   `yaml:"format,omitempty"` // json or text
	Rotation Rotation `yaml:"rotation,omitempty"`

	// CloudWatch specific
	Region          string `yaml:"region,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	LogGroup        string `yaml:"log_group,omitempty"`
	LogStream       string `yaml:"log_stream,omitempty"`
	CreateLogGroup  *bool  `yaml:"create_log_group,omitempty"`  // default true
	CreateLogStream *bool  `yaml:"create_log_stream,omitempty"` // default true

	// GCP specific
	ProjectID       string            `yaml:"project_id,omitempty"`
	CredentialsFile string            `yaml:"credentials_file,omitempty"`
	LogName         string            `yaml:"log_name,omitempty"`
	Labels          map[string]string `yaml:"labels,omitempty"`

	// Azure specific
	WorkspaceID  string `yaml:"workspace_id,omitempty"`
	WorkspaceKey string `yaml:"workspace_key,omitempty"`
	LogType      string `yaml:"log_type,omitempty"`

	// IBM specific
	IngestionKey string   `yaml:"ingestion_key,omitempty"`
	Hostname     string   `yaml:"hostname,omitempty"`
	AppName      string   `yaml:"app_name,omitempty"`
	URL          string   `yaml:"url,omitempty"`
	IndexMeta    bool     `yaml:"index_meta,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
	IP           string   `yaml:"ip,omitempty"`
	MAC          string   `yaml:"mac,omitempty"`

	// OCI specific
	ConfigFile string `yaml:"config_file,omitempty"`
	Profile    string `yaml:"profile,omitempty"`
	LogID      string `yaml:"log_id,omitempty"`
	Source     string `yaml:"source,omitempty"`

	// Shared by the HTTP backends (azure, ibm)
	Timeout string `yaml:"timeout,omitempty"` // default "30s"
}

// Config represents the application configuration.
type Config struct {
	App struct {
		Name        string `yaml:"name" validate:"required"`
		Service     string `yaml:"service"`     // defaults to App.Name
		Environment string `yaml:"environment"` // defaults to "production"
	} `yaml:"app"`

	AppLog struct {
		Level string `yaml:"level"`
	} `yaml:"app_log"`

	Server struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		TrustedProxies []string `yaml:"trusted_proxies"`
		ClientIPHeader string   `yaml:"client_ip_header"` // e.g. CF-Connecting-IP
		CORS           struct {
			Enabled        bool     `yaml:"enabled"`
			AllowedOrigins []string `yaml:"allowed_origins"`
			MaxAge         int      `yaml:"max_age"` // seconds
		} `yaml:"cors"`
		RequestLimits struct {
			MaxBodySize int `yaml:"max_body_size"` // bytes
			RateLimit   int `yaml:"rate_limit"`    // requests per minute
		} `yaml:"request_limits"`
	} `yaml:"server"`

	RequestLog struct {
		Disabled        bool     `yaml:"disabled"`
		RequestIDHeader string   `yaml:"request_id_header"` // default X-Request-ID
		SkipPaths       []string `yaml:"skip_paths"`        // glob patterns
	} `yaml:"request_log"`

	Backends []Backend `yaml:"backends"`
}

// CreateGroup reports whether a missing CloudWatch log group should be created.
func (b *Backend) CreateGroup() bool {
	return b.CreateLogGroup == nil || *b.CreateLogGroup
}

// CreateStream reports whether a missing CloudWatch log stream should be created.
func (b *Backend) CreateStream() bool {
	return b.CreateLogStream == nil || *b.CreateLogStream
}

// MinLevel returns the backend's minimum severity, defaulting to info.
func (b *Backend) MinLevel() level.Level {
	if b.Level == "" {
		return level.Default
	}
	l, err := level.Parse(b.Level)
	if err != nil {
		return level.Default
	}
	return l
}

// HTTPTimeout returns the backend's HTTP timeout, defaulting to 30s.
func (b *Backend) HTTPTimeout() time.Duration {
	if b.Timeout == "" {
		return 30 * time.Second
	}
	d, err := ParseDuration(b.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoadConfig loads, applies environment overrides to, and validates the
// configuration from a file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields from the per-vendor environment
// variables and then the documented defaults, so explicit config wins
// over the environment, which wins over defaults. LoadConfig calls it;
// callers building a Config in code should run it before ValidateConfig.
func ApplyDefaults(cfg *Config) {
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
}

// applyDefaults fills in values the original extension defaulted in code.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}
	if cfg.App.Service == "" {
		cfg.App.Service = cfg.App.Name
	}
	if cfg.AppLog.Level == "" {
		cfg.AppLog.Level = "WARN"
	}
	if cfg.RequestLog.RequestIDHeader == "" {
		cfg.RequestLog.RequestIDHeader = "X-Request-ID"
	}

	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		switch b.Type {
		case TypeGELF:
			if b.Port == 0 {
				b.Port = 12201
			}
			if b.Protocol == "" {
				b.Protocol = "udp"
			}
			if b.CompressionType == "" {
				b.CompressionType = "none"
			}
		case TypeGCP:
			if b.LogName == "" {
				b.LogName = cfg.App.Name
			}
		case TypeAzure:
			if b.LogType == "" {
				b.LogType = "AppLogs"
			}
		case TypeIBM:
			if b.URL == "" {
				b.URL = "https://logs.logdna.com/logs/ingest"
			}
			if b.AppName == "" {
				b.AppName = cfg.App.Name
			}
		case TypeCloudWatch:
			if b.Region == "" {
				b.Region = "us-east-1"
			}
		case TypeOCI:
			if b.Source == "" {
				b.Source = cfg.App.Name
			}
			if b.Profile == "" {
				b.Profile = "DEFAULT"
			}
		}
	}
}

// envOr returns the current value, or the named environment variable when
// the value is empty. This mirrors the original's config-then-env lookup.
func envOr(current, envName string) string {
	if current != "" {
		return current
	}
	return os.Getenv(envName)
}

// applyEnvOverrides fills empty credential and endpoint fields from the
// conventional per-vendor environment variables. Runs before
// applyDefaults so an explicitly configured value always wins.
func applyEnvOverrides(cfg *Config) {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		switch b.Type {
		case TypeGELF:
			b.Host = envOr(b.Host, "GRAYLOG_HOST")
			if b.Port == 0 {
				if p, err := strconv.Atoi(os.Getenv("GRAYLOG_PORT")); err == nil && p > 0 {
					b.Port = p
				}
			}
		case TypeCloudWatch:
			b.Region = envOr(b.Region, "AWS_REGION")
			b.AccessKeyID = envOr(b.AccessKeyID, "AWS_ACCESS_KEY_ID")
			b.SecretAccessKey = envOr(b.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
			b.LogGroup = envOr(b.LogGroup, "AWS_LOG_GROUP")
			b.LogStream = envOr(b.LogStream, "AWS_LOG_STREAM")
		case TypeGCP:
			b.ProjectID = envOr(b.ProjectID, "GCP_PROJECT_ID")
			b.CredentialsFile = envOr(b.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
		case TypeAzure:
			b.WorkspaceID = envOr(b.WorkspaceID, "AZURE_WORKSPACE_ID")
			b.WorkspaceKey = envOr(b.WorkspaceKey, "AZURE_WORKSPACE_KEY")
		case TypeIBM:
			b.IngestionKey = envOr(b.IngestionKey, "IBM_INGESTION_KEY")
			b.Hostname = envOr(b.Hostname, "IBM_HOSTNAME")
		case TypeOCI:
			b.ConfigFile = envOr(b.ConfigFile, "OCI_CONFIG_FILE")
			b.LogID = envOr(b.LogID, "OCI_LOG_ID")
		}
	}
}

// ValidateConfig runs struct-tag validation followed by semantic checks.
func ValidateConfig(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, ve := range verrs {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", ve.Field(), ve.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return validateSemantics(cfg)
}

// validateSemantics performs the checks struct tags cannot express.
func validateSemantics(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", cfg.Server.Port)
	}
	if cfg.Server.RequestLimits.MaxBodySize < 0 {
		return errors.New("server.request_limits.max_body_size cannot be negative")
	}
	if cfg.Server.RequestLimits.RateLimit < 0 {
		return errors.New("server.request_limits.rate_limit cannot be negative")
	}

	if cfg.Server.CORS.Enabled {
		if len(cfg.Server.CORS.AllowedOrigins) == 0 {
			return errors.New("server.cors.allowed_origins cannot be empty when CORS is enabled")
		}
		for i, origin := range cfg.Server.CORS.AllowedOrigins {
			if origin == "*" {
				continue
			}
			if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
				return fmt.Errorf("server.cors.allowed_origins[%d]: origin '%s' must start with 'http://' or 'https://'", i, origin)
			}
		}
		if cfg.Server.CORS.MaxAge < 0 {
			return errors.New("server.cors.max_age cannot be negative")
		}
	}

	if _, ok := applogNameSet[strings.ToUpper(cfg.AppLog.Level)]; !ok {
		return fmt.Errorf("invalid app_log.level: '%s'", cfg.AppLog.Level)
	}

	names := make(map[string]bool)
	for i, b := range cfg.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if names[b.Name] {
			return fmt.Errorf("backends: duplicate name '%s' found", b.Name)
		}
		names[b.Name] = true

		if b.Level != "" {
			if _, err := level.Parse(b.Level); err != nil {
				return fmt.Errorf("backends[%s]: invalid level: %w", b.Name, err)
			}
		}
		if b.Timeout != "" {
			if _, err := ParseDuration(b.Timeout); err != nil {
				return fmt.Errorf("backends[%s]: invalid timeout: %w", b.Name, err)
			}
		}

		if err := validateBackend(&cfg.Backends[i]); err != nil {
			return err
		}
	}

	return nil
}

var applogNameSet = map[string]struct{}{
	"TRACE": {}, "DEBUG": {}, "INFO": {}, "WARN": {}, "ERROR": {}, "FATAL": {},
}

func validateBackend(b *Backend) error {
	switch b.Type {
	case TypeGELF:
		if b.Host == "" {
			return fmt.Errorf("backends[%s]: host is required for type 'gelf'", b.Name)
		}
		if b.Port <= 0 || b.Port > 65535 {
			return fmt.Errorf("backends[%s]: invalid port %d for type 'gelf'", b.Name, b.Port)
		}
		if b.Protocol != "udp" && b.Protocol != "tcp" {
			return fmt.Errorf("backends[%s]: invalid protocol '%s', must be 'udp' or 'tcp'", b.Name, b.Protocol)
		}
		if b.CompressionType != "gzip" && b.CompressionType != "zlib" && b.CompressionType != "none" {
			return fmt.Errorf("backends[%s]: invalid compression_type '%s', must be 'gzip', 'zlib', or 'none'", b.Name, b.CompressionType)
		}
	case TypeFile:
		if b.Path == "" {
			return fmt.Errorf("backends[%s]: path is required for type 'file'", b.Name)
		}
		if b.Format != "json" && b.Format != "text" {
			return fmt.Errorf("backends[%s]: invalid format '%s', must be 'json' or 'text'", b.Name, b.Format)
		}
		if b.Rotation.MaxSize != "" {
			if _, err := ParseSize(b.Rotation.MaxSize); err != nil {
				return fmt.Errorf("backends[%s]: invalid rotation.max_size: %w", b.Name, err)
			}
		}
		if b.Rotation.MaxAge != "" {
			if _, err := ParseDuration(b.Rotation.MaxAge); err != nil {
				return fmt.Errorf("backends[%s]: invalid rotation.max_age: %w", b.Name, err)
			}
		}
		if b.Rotation.MaxBackups < 0 {
			return fmt.Errorf("backends[%s]: rotation.max_backups cannot be negative", b.Name)
		}
	case TypeCloudWatch:
		if b.LogGroup == "" {
			return fmt.Errorf("backends[%s]: log_group is required for type 'cloudwatch'", b.Name)
		}
		if b.LogStream == "" {
			return fmt.Errorf("backends[%s]: log_stream is required for type 'cloudwatch'", b.Name)
		}
	case TypeGCP:
		if b.ProjectID == "" {
			return fmt.Errorf("backends[%s]: project_id is required for type 'gcp'", b.Name)
		}
	case TypeAzure:
		if b.WorkspaceID == "" || b.WorkspaceKey == "" {
			return fmt.Errorf("backends[%s]: workspace_id and workspace_key are required for type 'azure'", b.Name)
		}
	case TypeIBM:
		if b.IngestionKey == "" {
			return fmt.Errorf("backends[%s]: ingestion_key is required for type 'ibm'", b.Name)
		}
	case TypeOCI:
		if b.LogID == "" {
			return fmt.Errorf("backends[%s]: log_id is required for type 'oci'", b.Name)
		}
	default:
		return fmt.Errorf("backends[%s]: unknown type '%s'", b.Name, b.Type)
	}
	return nil
}

// ParseDuration parses a duration string (e.g. "10m", "1h30m", "7d").
// Supports standard time.ParseDuration units plus 'd' for days.
// The duration must be positive.
func ParseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, errors.New("duration string cannot be empty")
	}

	if strings.HasSuffix(strings.ToLower(durationStr), "d") {
		numStr := strings.TrimSuffix(strings.ToLower(durationStr), "d")
		days, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format for days in '%s': %w", durationStr, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format '%s': %w", durationStr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
	}
	return d, nil
}

// ParseSize parses a size string (e.g. "10MB", "5k", "1G") into bytes.
// Supports K, M, G suffixes with an optional trailing B, case-insensitive.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, errors.New("size string cannot be empty")
	}

	var multiplier int64 = 1
	suffix := ""

	switch {
	case strings.HasSuffix(sizeStr, "KB"):
		multiplier, suffix = 1024, "KB"
	case strings.HasSuffix(sizeStr, "K"):
		multiplier, suffix = 1024, "K"
	case strings.HasSuffix(sizeStr, "MB"):
		multiplier, suffix = 1024*1024, "MB"
	case strings.HasSuffix(sizeStr, "M"):
		multiplier, suffix = 1024*1024, "M"
	case strings.HasSuffix(sizeStr, "GB"):
		multiplier, suffix = 1024*1024*1024, "GB"
	case strings.HasSuffix(sizeStr, "G"):
		multiplier, suffix = 1024*1024*1024, "G"
	}

	numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, suffix))

	numBig := new(big.Int)
	if _, ok := numBig.SetString(numStr, 10); !ok {
		return 0, fmt.Errorf("invalid number format in size string '%s'", sizeStr)
	}
	if numBig.Sign() < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", numBig.String())
	}
	if numBig.Sign() == 0 {
		return 0, nil
	}

	resultBig := new(big.Int).Mul(numBig, big.NewInt(multiplier))
	if !resultBig.IsInt64() {
		return 0, fmt.Errorf("size value %s%s results in overflow (exceeds max int64)", numBig.String(), suffix)
	}
	return resultBig.Int64(), nil
}
