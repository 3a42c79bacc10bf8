package observability

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is one state change recorded for the audit trail.
type AuditEvent struct {
	Event      string            `json:"event"`
	ActorID    string            `json:"actor_id,omitempty"`
	TargetType string            `json:"target_type,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	Outcome    string            `json:"outcome"`
	RequestID  string            `json:"request_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func Audit(ctx context.Context, logger *slog.Logger, e AuditEvent) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []any{
		"event", e.Event,
		"actor_id", e.ActorID,
		"target_type", e.TargetType,
		"target_id", e.TargetID,
		"outcome", e.Outcome,
		"request_id", e.RequestID,
		"occurred_at", e.OccurredAt,
	}
	for k, v := range e.Attributes {
		base = append(base, k, v)
	}
	logger.InfoContext(ctx, "audit", base...)
}
