// Package audit records authentication decisions as structured audit events.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

type ctxKey string

const connIDKey ctxKey = "audit_conn_id"

// WithConnID attaches the connection identifier to the context for audit logging.
func WithConnID(ctx context.Context, connID string) context.Context {
	connID = strings.TrimSpace(connID)
	if connID == "" {
		return ctx
	}
	return context.WithValue(ctx, connIDKey, connID)
}

// ConnIDFromContext returns the connection identifier set by WithConnID.
func ConnIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(connIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the connection id. Callers must not
// put credential material in fields.
func LogEvent(ctx context.Context, log *slog.Logger, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	if log == nil {
		log = slog.Default()
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
		slog.Time("ts", time.Now().UTC()),
	}
	if id := ConnIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("conn_id", id))
	}
	group := make([]any, 0, len(fields))
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))
	log.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
