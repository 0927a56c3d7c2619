package topic

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aetherflow-dev/aetherflow/internal/observability"
)

// InstrumentedLog wraps a Log with tracing. Every consensus-service call
// becomes a span carrying the topic id, payload size and outcome, which is
// how a cross-topic handshake is followed in traces.
type InstrumentedLog struct {
	inner   Log
	enabled bool
}

// NewInstrumentedLog wraps a log with instrumentation.
func NewInstrumentedLog(inner Log) *InstrumentedLog {
	return &InstrumentedLog{inner: inner, enabled: true}
}

// WrapLog wraps a log with instrumentation unless it is already wrapped.
func WrapLog(inner Log) Log {
	if _, ok := inner.(*InstrumentedLog); ok {
		return inner
	}
	return NewInstrumentedLog(inner)
}

// CreateTopic creates a topic with a surrounding span.
func (l *InstrumentedLog) CreateTopic(ctx context.Context, memo string, adminKeyed bool) (ID, error) {
	if !l.enabled {
		return l.inner.CreateTopic(ctx, memo, adminKeyed)
	}

	ctx, span := observability.StartSpan(ctx, "topic.create",
		trace.WithAttributes(
			attribute.String("topic.memo", memo),
			attribute.Bool("topic.admin_keyed", adminKeyed),
		),
	)
	defer span.End()

	start := time.Now()
	id, err := l.inner.CreateTopic(ctx, memo, adminKeyed)

	span.SetAttributes(
		attribute.Int64("topic.duration_ms", time.Since(start).Milliseconds()),
		attribute.Bool("topic.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("topic.id", string(id)))
	return id, nil
}

// SubmitMessage appends with a surrounding span.
func (l *InstrumentedLog) SubmitMessage(ctx context.Context, topicID ID, payload []byte, memo string) (TxID, error) {
	if !l.enabled {
		return l.inner.SubmitMessage(ctx, topicID, payload, memo)
	}

	ctx, span := observability.StartSpan(ctx, "topic.submit",
		trace.WithAttributes(
			attribute.String("topic.id", string(topicID)),
			attribute.Int("topic.payload_bytes", len(payload)),
			attribute.String("topic.tx_memo", memo),
		),
	)
	defer span.End()

	start := time.Now()
	txID, err := l.inner.SubmitMessage(ctx, topicID, payload, memo)

	span.SetAttributes(
		attribute.Int64("topic.duration_ms", time.Since(start).Milliseconds()),
		attribute.Bool("topic.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("topic.tx_id", string(txID)))
	return txID, nil
}

// GetTopicInfo queries with a surrounding span.
func (l *InstrumentedLog) GetTopicInfo(ctx context.Context, topicID ID) (*Info, error) {
	if !l.enabled {
		return l.inner.GetTopicInfo(ctx, topicID)
	}

	ctx, span := observability.StartSpan(ctx, "topic.info",
		trace.WithAttributes(attribute.String("topic.id", string(topicID))),
	)
	defer span.End()

	info, err := l.inner.GetTopicInfo(ctx, topicID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("topic.sequence_number", int64(info.SequenceNumber)))
	return info, nil
}

// Unwrap returns the underlying log.
func (l *InstrumentedLog) Unwrap() Log {
	return l.inner
}
