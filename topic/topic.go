// Package topic defines the append-only broadcast log contract that the
// OpenConvAI protocol core is built on, together with the in-memory and
// Redis-backed implementations used in tests and single-node deployments.
//
// A topic is an ordered, sequence-numbered channel owned by an external
// consensus service. Ordering holds within a single topic only; nothing is
// guaranteed across topics, and the protocol core never assumes otherwise.
package topic

import (
	"context"
	"time"
)

// ID identifies a topic on the consensus service (e.g. "0.0.300").
type ID string

// TxID identifies a single accepted append (e.g. "0.0.2@1700000000.000000001").
type TxID string

// Info is the metadata the service exposes for a topic.
type Info struct {
	TopicID        ID     `json:"topic_id"`
	Memo           string `json:"memo"`
	SequenceNumber uint64 `json:"sequence_number"`
	RunningHash    string `json:"running_hash"`
}

// Log is the append-only broadcast primitive consumed by the protocol core.
// Implementations wrap an external service; all methods are network calls and
// must honor the context deadline. A transport failure or timeout surfaces as
// ErrUnavailable so callers can distinguish it from protocol-level rejection.
//
// The concrete implementation is chosen by explicit dependency injection at
// startup, never by import-time fallback.
type Log interface {
	// CreateTopic creates a new topic carrying the given memo and returns
	// its id. adminKeyed topics can later be updated or deleted by the
	// operator; the protocol core always creates admin-keyed topics.
	CreateTopic(ctx context.Context, memo string, adminKeyed bool) (ID, error)

	// SubmitMessage appends a payload to the topic and returns the
	// transaction id assigned by the service. The optional memo is attached
	// to the submit transaction, not to the payload.
	SubmitMessage(ctx context.Context, topicID ID, payload []byte, memo string) (TxID, error)

	// GetTopicInfo returns the topic's metadata, or ErrNotFound.
	GetTopicInfo(ctx context.Context, topicID ID) (*Info, error)
}

// DefaultTimeout bounds a single Log call when the caller's context carries
// no deadline of its own.
const DefaultTimeout = 10 * time.Second

// withTimeout adds DefaultTimeout unless the context already has a deadline.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
