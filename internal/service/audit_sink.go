package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"github.com/redis/go-redis/v9"
)

// AuditSink is an append-only event log. Callers never depend on it
// succeeding.
type AuditSink interface {
	Record(ctx context.Context, e observability.AuditEvent) error
}

type SlogAuditSink struct {
	logger *slog.Logger
}

func NewSlogAuditSink(logger *slog.Logger) *SlogAuditSink {
	return &SlogAuditSink{logger: logger}
}

func (s *SlogAuditSink) Record(ctx context.Context, e observability.AuditEvent) error {
	observability.Audit(ctx, s.logger, e)
	return nil
}

// RedisStreamAuditSink appends events to a capped Redis stream.
type RedisStreamAuditSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisStreamAuditSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamAuditSink {
	if stream == "" {
		stream = "audit"
	}
	return &RedisStreamAuditSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamAuditSink) Record(ctx context.Context, e observability.AuditEvent) error {
	if s.client == nil {
		return nil
	}
	attrs := "{}"
	if len(e.Attributes) > 0 {
		raw, err := json.Marshal(e.Attributes)
		if err != nil {
			return err
		}
		attrs = string(raw)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"event":       e.Event,
			"actor_id":    e.ActorID,
			"target_type": e.TargetType,
			"target_id":   e.TargetID,
			"outcome":     e.Outcome,
			"request_id":  e.RequestID,
			"attributes":  attrs,
			"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

type MultiAuditSink []AuditSink

func (m MultiAuditSink) Record(ctx context.Context, e observability.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Auditor stamps events and sends them to the sink. Failures are logged and
// counted, never returned.
type Auditor struct {
	sink   AuditSink
	logger *slog.Logger
	now    Clock
}

func NewAuditor(sink AuditSink, logger *slog.Logger, now Clock) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = SystemClock
	}
	return &Auditor{sink: sink, logger: logger, now: now}
}

func (a *Auditor) Emit(ctx context.Context, e observability.AuditEvent) {
	if a == nil || a.sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = a.now()
	}
	if e.RequestID == "" {
		e.RequestID = observability.RequestIDFromContext(ctx)
	}
	if err := a.sink.Record(ctx, e); err != nil {
		observability.RecordAuditSinkFailure(ctx, e.Event)
		a.logger.WarnContext(ctx, "audit sink failed", "event", e.Event, "error", err)
	}
}
