package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	configMetricsOnce sync.Once
	configCounter     metric.Int64Counter
)

func recordConfigValidationEvent(ctx context.Context, profile, outcome, errorClass string) {
	configMetricsOnce.Do(func() {
		counter, err := otel.Meter("secure-qr-auth-service").Int64Counter("config.validation.events")
		if err == nil {
			configCounter = counter
		}
	})
	if configCounter == nil {
		return
	}
	configCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass),
	))
}

func normalizeConfigProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	return v
}

// classifyConfigLoadError maps a Load failure to a low-cardinality class.
// Validation failures are joined, so the most severe class present wins.
func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if !strings.Contains(msg, "validate config:") {
		if strings.Contains(msg, "parse ") {
			return "parse"
		}
		return "load"
	}
	switch {
	case strings.Contains(msg, "_secret must"):
		return "secret"
	case strings.Contains(msg, "db_driver"), strings.Contains(msg, "database_url"):
		return "database"
	case strings.Contains(msg, "_ttl must"), strings.Contains(msg, "cache ttls"):
		return "ttl"
	case strings.Contains(msg, "invite_"):
		return "invite"
	default:
		return "validation"
	}
}
