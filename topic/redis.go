package topic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog implements Log on top of Redis. It provides durable, multi-process
// topic state suitable for running several protocol nodes against one store:
// topic metadata in a hash, appends in a list, sequence numbers via INCR.
type RedisLog struct {
	client   *redis.Client
	prefix   string
	operator string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all topic keys (default: "aetherflow:topic:").
	Prefix string
	// Operator is the payer account id used in generated transaction ids.
	Operator string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisLog creates a Redis-backed log and verifies connectivity.
func NewRedisLog(cfg RedisConfig) (*RedisLog, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisLogFromClient(client, cfg.Prefix, cfg.Operator), nil
}

// NewRedisLogFromClient creates a Redis log from an existing client.
// This is useful for testing with miniredis.
func NewRedisLogFromClient(client *redis.Client, prefix, operator string) *RedisLog {
	if prefix == "" {
		prefix = "aetherflow:topic:"
	}
	if operator == "" {
		operator = "0.0.2"
	}
	return &RedisLog{client: client, prefix: prefix, operator: operator}
}

// Key helpers
func (l *RedisLog) counterKey() string      { return l.prefix + "next" }
func (l *RedisLog) metaKey(id ID) string    { return l.prefix + "meta:" + string(id) }
func (l *RedisLog) entriesKey(id ID) string { return l.prefix + "entries:" + string(id) }
func (l *RedisLog) hashKey(id ID) string    { return l.prefix + "hash:" + string(id) }

// redisEntry is the stored form of one append. The entry's position in the
// list is its sequence number.
type redisEntry struct {
	Payload     []byte    `json:"payload"`
	Memo        string    `json:"memo,omitempty"`
	ConsensusAt time.Time `json:"consensus_at"`
}

// CreateTopic creates a new topic and returns its id.
func (l *RedisLog) CreateTopic(ctx context.Context, memo string, adminKeyed bool) (ID, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	num, err := l.client.Incr(ctx, l.counterKey()).Result()
	if err != nil {
		return "", unavailable("create topic", "", err)
	}

	// Topic numbering starts well clear of system accounts.
	id := ID(fmt.Sprintf("0.0.%d", 1000+num))

	admin := "0"
	if adminKeyed {
		admin = "1"
	}
	if err := l.client.HSet(ctx, l.metaKey(id), "memo", memo, "admin", admin).Err(); err != nil {
		return "", unavailable("create topic", id, err)
	}
	return id, nil
}

// SubmitMessage appends a payload to the topic and returns a transaction id.
func (l *RedisLog) SubmitMessage(ctx context.Context, topicID ID, payload []byte, memo string) (TxID, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	exists, err := l.client.Exists(ctx, l.metaKey(topicID)).Result()
	if err != nil {
		return "", unavailable("submit message", topicID, err)
	}
	if exists == 0 {
		return "", fmt.Errorf("submit to %s: %w", topicID, ErrNotFound)
	}

	now := time.Now().UTC()
	entry := redisEntry{
		Payload:     payload,
		Memo:        memo,
		ConsensusAt: now,
	}

	// RPUSH assigns the position; list length after the push is the
	// sequence number within this topic.
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	if err := l.client.RPush(ctx, l.entriesKey(topicID), data).Err(); err != nil {
		return "", unavailable("submit message", topicID, err)
	}

	prev, err := l.client.Get(ctx, l.hashKey(topicID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", unavailable("submit message", topicID, err)
	}
	h := sha256.New()
	h.Write(prev)
	h.Write(payload)
	if err := l.client.Set(ctx, l.hashKey(topicID), h.Sum(nil), 0).Err(); err != nil {
		return "", unavailable("submit message", topicID, err)
	}

	txID := TxID(fmt.Sprintf("%s@%d.%09d", l.operator, now.Unix(), now.Nanosecond()))
	return txID, nil
}

// GetTopicInfo returns the topic's metadata.
func (l *RedisLog) GetTopicInfo(ctx context.Context, topicID ID) (*Info, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	meta, err := l.client.HGetAll(ctx, l.metaKey(topicID)).Result()
	if err != nil {
		return nil, unavailable("get topic info", topicID, err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("info for %s: %w", topicID, ErrNotFound)
	}

	seq, err := l.client.LLen(ctx, l.entriesKey(topicID)).Result()
	if err != nil {
		return nil, unavailable("get topic info", topicID, err)
	}

	hash, err := l.client.Get(ctx, l.hashKey(topicID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("get topic info", topicID, err)
	}

	return &Info{
		TopicID:        topicID,
		Memo:           meta["memo"],
		SequenceNumber: uint64(seq),
		RunningHash:    hex.EncodeToString(hash),
	}, nil
}

// Close releases the underlying Redis client.
func (l *RedisLog) Close() error {
	return l.client.Close()
}
