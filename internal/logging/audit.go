package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditReportBuilt          AuditEventType = "report_built"
	AuditHRSElevated          AuditEventType = "hrs_elevated"
	AuditReportExported       AuditEventType = "report_exported"
	AuditRulebookLoaded       AuditEventType = "rulebook_loaded"
	AuditRulebookReloadFailed AuditEventType = "rulebook_reload_failed"
	AuditSourceDegraded       AuditEventType = "source_degraded"
)

// AuditEvent is one line of the audit trail. Events carry identifiers and
// counts only, never free text from a subject's records.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	SubjectID string         `json:"subject_id,omitempty"`
	ReportID  string         `json:"report_id,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string

	// Writer overrides FilePath when set.
	Writer io.Writer
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   DefaultLogPath("audit.log"),
		MaxSize:    50,  // 50 MB
		MaxAge:     365, // clinical audit trails are kept for a year
		MaxBackups: 20,
		Compress:   true,
		Component:  "carepulse",
	}
}

// AuditLogger writes JSON-lines audit events.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *FileRotator
	w       io.Writer
	now     func() time.Time
	mu      sync.Mutex
}

// NewAuditLogger creates a new AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	a := &AuditLogger{config: cfg, now: time.Now}

	if cfg.Writer != nil {
		a.w = cfg.Writer
		return a, nil
	}

	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}
	a.rotator = rotator
	a.w = rotator
	return a, nil
}

// NopAuditLogger returns an audit logger that discards events.
func NopAuditLogger() *AuditLogger {
	return &AuditLogger{config: DefaultAuditConfig(), w: io.Discard, now: time.Now}
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	if event.Result == "" {
		event.Result = "success"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogReportBuilt records a completed report build.
func (a *AuditLogger) LogReportBuilt(ctx context.Context, subjectID, reportID string, details map[string]any) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditReportBuilt,
		SubjectID: subjectID,
		ReportID:  reportID,
		Action:    "build_report",
		Details:   details,
	})
}

// LogHRSElevated records an elevated harm-risk classification. The matched
// terms are recorded, never the surrounding text.
func (a *AuditLogger) LogHRSElevated(ctx context.Context, subjectID, reportID string, terms []string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditHRSElevated,
		SubjectID: subjectID,
		ReportID:  reportID,
		Action:    "classify_harm_risk",
		Details:   map[string]any{"direct_terms": terms, "direct_count": len(terms)},
	})
}

// LogExport records a report export.
func (a *AuditLogger) LogExport(ctx context.Context, subjectID, reportID, outputPath string, signed bool) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditReportExported,
		SubjectID: subjectID,
		ReportID:  reportID,
		Action:    "export_report",
		Resource:  outputPath,
		Details:   map[string]any{"signed": signed},
	})
}

// LogRulebookLoaded records a rulebook becoming active.
func (a *AuditLogger) LogRulebookLoaded(ctx context.Context, version, source string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditRulebookLoaded,
		Action:    "load_rulebook",
		Resource:  source,
		Details:   map[string]any{"version": version},
	})
}

// LogRulebookReloadFailed records a rejected rulebook reload. The previous
// rulebook stays active.
func (a *AuditLogger) LogRulebookReloadFailed(ctx context.Context, source string, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditRulebookReloadFailed,
		Action:    "load_rulebook",
		Resource:  source,
		Result:    "failure",
		Error:     err.Error(),
	})
}

// LogSourceDegraded records a source fetch that fell back to no data.
func (a *AuditLogger) LogSourceDegraded(ctx context.Context, subjectID, source string, err error) error {
	event := AuditEvent{
		EventType: AuditSourceDegraded,
		SubjectID: subjectID,
		Action:    "fetch_source",
		Resource:  source,
		Result:    "failure",
	}
	if err != nil {
		event.Error = err.Error()
	}
	return a.Log(ctx, event)
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.rotator == nil {
		return nil
	}
	return a.rotator.Close()
}
