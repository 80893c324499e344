package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig is matched by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidConfig).
func (e ValidationErrors) Unwrap() error { return ErrInvalidConfig }

// Fields lists the offending field names in report order.
func (e ValidationErrors) Fields() []string {
	out := make([]string, len(e))
	for i, err := range e {
		out[i] = err.Field
	}
	return out
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateSources(&c.Sources)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateAudit(&c.Audit)...)
	errs = append(errs, validateSigning(&c.Signing)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := time.LoadLocation(e.Timezone); err != nil || e.Timezone == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.timezone",
			Message: fmt.Sprintf("unknown timezone %q", e.Timezone),
		})
	}

	if e.LookbackDays < 1 || e.LookbackDays > 366 {
		errs = append(errs, ValidationError{
			Field:   "engine.lookback_days",
			Message: "lookback must be between 1 and 366 days",
		})
	}

	if e.RulebookPath != "" {
		switch strings.ToLower(filepath.Ext(e.RulebookPath)) {
		case ".toml", ".yaml", ".yml", ".json":
		default:
			errs = append(errs, ValidationError{
				Field:   "engine.rulebook_path",
				Message: "rulebook must be a .toml, .yaml or .json file",
			})
		}
	}

	return errs
}

func validateSources(s *SourcesConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.FailurePolicy {
	case PolicyDegrade, PolicyAbort:
	default:
		errs = append(errs, ValidationError{
			Field:   "sources.failure_policy",
			Message: fmt.Sprintf("invalid policy: %s (valid: degrade, abort)", s.FailurePolicy),
		})
	}

	if s.FetchTimeoutMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "sources.fetch_timeout_ms",
			Message: "fetch timeout must be positive",
		})
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "sqlite", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: sqlite, memory)", s.Type),
		})
	}

	if s.Type == "sqlite" {
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: "database path is required for sqlite storage",
			})
		}

		// A missing directory is fine; it is created on startup.
		dir := filepath.Dir(expandPath(s.Path))
		if dir != "" && dir != "." {
			if info, err := os.Stat(dir); err == nil && !info.IsDir() {
				errs = append(errs, ValidationError{
					Field:   "storage.path",
					Message: fmt.Sprintf("parent path is not a directory: %s", dir),
				})
			}
		}
	}

	if s.MaxConnections < 1 || s.MaxConnections > 100 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_connections",
			Message: "max connections must be between 1 and 100",
		})
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output writes a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateAudit(a *AuditConfig) ValidationErrors {
	var errs ValidationErrors
	if !a.Enabled {
		return errs
	}

	if a.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "audit.file_path",
			Message: "audit path is required when enabled",
		})
	}
	if a.MaxSizeMB < 0 || a.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "audit",
			Message: "rotation limits cannot be negative",
		})
	}
	return errs
}

func validateSigning(s *SigningConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Algorithm != "ed25519" {
		errs = append(errs, ValidationError{
			Field:   "signing.algorithm",
			Message: fmt.Sprintf("invalid algorithm: %s (valid: ed25519)", s.Algorithm),
		})
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
