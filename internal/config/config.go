// Package config handles configuration loading, validation, and management for carepulse.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"carepulse/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Source failure policies.
const (
	PolicyDegrade = "degrade"
	PolicyAbort   = "abort"
)

// Config holds the complete carepulse configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configuration for report builds.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Sources configuration for record gathering.
	Sources SourcesConfig `toml:"sources" json:"sources" yaml:"sources"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Audit trail configuration.
	Audit AuditConfig `toml:"audit" json:"audit" yaml:"audit"`

	// Signing configuration for report exports.
	Signing SigningConfig `toml:"signing" json:"signing" yaml:"signing"`

	// Export configuration.
	Export ExportConfig `toml:"export" json:"export" yaml:"export"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// EngineConfig holds report engine configuration.
type EngineConfig struct {
	// Timezone is the IANA zone used to assign records to calendar days.
	Timezone string `toml:"timezone" json:"timezone" yaml:"timezone"`

	// LookbackDays is the default window length when no dates are given.
	LookbackDays int `toml:"lookback_days" json:"lookback_days" yaml:"lookback_days"`

	// RulebookPath points at a TOML, YAML or JSON rulebook.
	// Empty selects the embedded default.
	RulebookPath string `toml:"rulebook_path" json:"rulebook_path" yaml:"rulebook_path"`
}

// SourcesConfig holds record gathering configuration.
type SourcesConfig struct {
	// FailurePolicy is "degrade" (failed sources become empty) or "abort".
	FailurePolicy string `toml:"failure_policy" json:"failure_policy" yaml:"failure_policy"`

	// FetchTimeoutMs bounds each source fetch.
	FetchTimeoutMs int `toml:"fetch_timeout_ms" json:"fetch_timeout_ms" yaml:"fetch_timeout_ms"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// AuditConfig holds audit trail configuration.
type AuditConfig struct {
	// Enabled turns the JSON-lines audit trail on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// FilePath is the audit log path.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum audit file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxAgeDays is how long rotated audit files are kept.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
}

// SigningConfig holds export signing configuration.
type SigningConfig struct {
	// KeyPath is the Ed25519 private key (raw seed or OpenSSH PEM).
	// Empty disables signing.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`

	// PublicKeyPath is where the matching public key is written.
	PublicKeyPath string `toml:"public_key_path" json:"public_key_path" yaml:"public_key_path"`

	// Algorithm is the signing algorithm. Only "ed25519" is supported.
	Algorithm string `toml:"algorithm" json:"algorithm" yaml:"algorithm"`

	// PassphraseEnv names the environment variable holding the passphrase
	// of an encrypted OpenSSH key. Empty means the key is unencrypted.
	PassphraseEnv string `toml:"passphrase_env" json:"passphrase_env" yaml:"passphrase_env"`
}

// Passphrase returns the key passphrase from PassphraseEnv, or nil.
func (s SigningConfig) Passphrase() []byte {
	if s.PassphraseEnv == "" {
		return nil
	}
	if v := os.Getenv(s.PassphraseEnv); v != "" {
		return []byte(v)
	}
	return nil
}

// ExportConfig holds report export configuration.
type ExportConfig struct {
	// Dir is the default directory for exported reports.
	Dir string `toml:"dir" json:"dir" yaml:"dir"`

	// ValidateSchema checks every export against the report schema.
	ValidateSchema bool `toml:"validate_schema" json:"validate_schema" yaml:"validate_schema"`

	// Persist stores built reports in the database.
	Persist bool `toml:"persist" json:"persist" yaml:"persist"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			Timezone:     "UTC",
			LookbackDays: 7,
		},
		Sources: SourcesConfig{
			FailurePolicy:  PolicyDegrade,
			FetchTimeoutMs: 5000,
		},
		Storage: StorageConfig{
			Type:           "sqlite",
			Path:           filepath.Join(dir, "carepulse.db"),
			MaxConnections: 5,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "logs", "carepulse.log"),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			FilePath:   filepath.Join(dir, "logs", "audit.log"),
			MaxSizeMB:  50,
			MaxAgeDays: 365,
		},
		Signing: SigningConfig{
			PublicKeyPath: filepath.Join(dir, "export_key.pub"),
			Algorithm:     "ed25519",
		},
		Export: ExportConfig{
			Dir:            filepath.Join(dir, "exports"),
			ValidateSchema: true,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base carepulse data directory.
// CAREPULSE_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("CAREPULSE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return cfg, nil
}

// Save writes the configuration as TOML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured paths live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		c.Export.Dir,
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.Audit.Enabled {
		dirs = append(dirs, filepath.Dir(c.Audit.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with CAREPULSE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Engine overrides
	if v := os.Getenv("CAREPULSE_TIMEZONE"); v != "" {
		c.Engine.Timezone = v
	}
	if v := os.Getenv("CAREPULSE_LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.LookbackDays = n
		}
	}
	if v := os.Getenv("CAREPULSE_RULEBOOK"); v != "" {
		c.Engine.RulebookPath = v
	}

	// Sources overrides
	if v := os.Getenv("CAREPULSE_FAILURE_POLICY"); v != "" {
		c.Sources.FailurePolicy = v
	}

	// Storage overrides
	if v := os.Getenv("CAREPULSE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Signing overrides
	if v := os.Getenv("CAREPULSE_SIGNING_KEY_PATH"); v != "" {
		c.Signing.KeyPath = v
	}

	// Logging overrides
	if v := os.Getenv("CAREPULSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CAREPULSE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CAREPULSE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("CAREPULSE_AUDIT_PATH"); v != "" {
		c.Audit.FilePath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version: c.Version,
		Engine:  c.Engine,
		Sources: c.Sources,
		Storage: c.Storage,
		Logging: c.Logging,
		Audit:   c.Audit,
		Signing: c.Signing,
		Export:  c.Export,
	}
}

// FetchTimeout returns the per-source fetch timeout.
func (s SourcesConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutMs) * time.Millisecond
}

// LoggerConfig converts the section into a logging.Config.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = l.Output
	cfg.FilePath = l.FilePath
	cfg.MaxSize = int64(l.MaxSizeMB)
	cfg.MaxBackups = l.MaxBackups
	cfg.MaxAge = l.MaxAgeDays
	cfg.Compress = l.Compress
	return cfg, nil
}

// AuditLoggerConfig converts the section into a logging.AuditLoggerConfig.
func (a AuditConfig) AuditLoggerConfig() *logging.AuditLoggerConfig {
	cfg := logging.DefaultAuditConfig()
	cfg.FilePath = a.FilePath
	if a.MaxSizeMB > 0 {
		cfg.MaxSize = int64(a.MaxSizeMB)
	}
	if a.MaxAgeDays > 0 {
		cfg.MaxAge = a.MaxAgeDays
	}
	return cfg
}
