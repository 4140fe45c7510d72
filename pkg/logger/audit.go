package logger

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Audit event types
const (
	EventUserRegistered     = "user_registered"
	EventLoginSuccess       = "login_success"
	EventLoginFailed        = "login_failed"
	EventLogout             = "logout"
	EventPasswordChanged    = "password_changed"
	EventEmailVerified      = "email_verified"
	EventUserUpdatedByAdmin = "user_updated_by_admin"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	ActorID       string // set when someone other than the subject acted
	Email         string // masked before it is written
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit records to a structured logger
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log writes one audit record. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for _, key := range slices.Sorted(maps.Keys(event.Metadata)) {
		attrs = append(attrs, slog.String(key, event.Metadata[key]))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
