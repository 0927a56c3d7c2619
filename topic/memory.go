package topic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Entry is a single append recorded by the in-memory log.
type Entry struct {
	SequenceNumber uint64
	Payload        []byte
	Memo           string
	ConsensusAt    time.Time
}

// MemoryLog is a single-process Log implementation backed by in-memory
// state. It assigns deterministic topic ids ("0.0.<n>") and Hedera-style
// transaction ids, maintains per-topic sequence numbers and a running hash,
// and is safe for concurrent use.
//
// MemoryLog stands in for the real consensus service in tests and local
// development; it is selected by dependency injection like any other backend.
type MemoryLog struct {
	mu       sync.RWMutex
	operator string
	nextNum  uint64
	topics   map[ID]*memoryTopic
}

type memoryTopic struct {
	memo        string
	adminKeyed  bool
	entries     []Entry
	runningHash []byte
}

// NewMemoryLog creates an in-memory log. The operator account id is used as
// the payer portion of generated transaction ids; topic numbering starts at
// firstTopicNum.
func NewMemoryLog(operator string, firstTopicNum uint64) *MemoryLog {
	if operator == "" {
		operator = "0.0.2"
	}
	if firstTopicNum == 0 {
		firstTopicNum = 1000
	}
	return &MemoryLog{
		operator: operator,
		nextNum:  firstTopicNum,
		topics:   make(map[ID]*memoryTopic),
	}
}

// CreateTopic creates a new topic and returns its id.
func (l *MemoryLog) CreateTopic(ctx context.Context, memo string, adminKeyed bool) (ID, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("create topic", "", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := ID(fmt.Sprintf("0.0.%d", l.nextNum))
	l.nextNum++
	l.topics[id] = &memoryTopic{memo: memo, adminKeyed: adminKeyed}
	return id, nil
}

// SubmitMessage appends a payload to the topic and returns a transaction id.
func (l *MemoryLog) SubmitMessage(ctx context.Context, topicID ID, payload []byte, memo string) (TxID, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("submit message", topicID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.topics[topicID]
	if !ok {
		return "", fmt.Errorf("submit to %s: %w", topicID, ErrNotFound)
	}

	now := time.Now().UTC()
	seq := uint64(len(t.entries)) + 1

	// Running hash chains the previous hash with the new payload, mirroring
	// how the consensus service derives it.
	h := sha256.New()
	h.Write(t.runningHash)
	h.Write(payload)
	t.runningHash = h.Sum(nil)

	t.entries = append(t.entries, Entry{
		SequenceNumber: seq,
		Payload:        payload,
		Memo:           memo,
		ConsensusAt:    now,
	})

	txID := TxID(fmt.Sprintf("%s@%d.%09d", l.operator, now.Unix(), now.Nanosecond()))
	return txID, nil
}

// GetTopicInfo returns the topic's metadata.
func (l *MemoryLog) GetTopicInfo(ctx context.Context, topicID ID) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get topic info", topicID, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.topics[topicID]
	if !ok {
		return nil, fmt.Errorf("info for %s: %w", topicID, ErrNotFound)
	}
	return &Info{
		TopicID:        topicID,
		Memo:           t.memo,
		SequenceNumber: uint64(len(t.entries)),
		RunningHash:    hex.EncodeToString(t.runningHash),
	}, nil
}

// Entries returns a copy of everything appended to the topic, in sequence
// order. Test and replay helper; not part of the Log contract.
func (l *MemoryLog) Entries(topicID ID) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.topics[topicID]
	if !ok {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
