package topic

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLog(t *testing.T) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLogFromClient(client, "test:topic:", "0.0.2"), mr
}

func TestRedisLogCreateTopic(t *testing.T) {
	logc, _ := newTestRedisLog(t)
	ctx := context.Background()

	first, err := logc.CreateTopic(ctx, "memo-a", true)
	require.NoError(t, err)
	assert.Equal(t, "0.0.1001", string(first))

	second, err := logc.CreateTopic(ctx, "memo-b", false)
	require.NoError(t, err)
	assert.Equal(t, "0.0.1002", string(second))
}

func TestRedisLogSubmitAndInfo(t *testing.T) {
	logc, _ := newTestRedisLog(t)
	ctx := context.Background()

	id, err := logc.CreateTopic(ctx, "hcs-10:0:60:3", true)
	require.NoError(t, err)

	info, err := logc.GetTopicInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.SequenceNumber)
	assert.Equal(t, "hcs-10:0:60:3", info.Memo)

	txID, err := logc.SubmitMessage(ctx, id, []byte("one"), "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, txID)

	_, err = logc.SubmitMessage(ctx, id, []byte("two"), "m2")
	require.NoError(t, err)

	info, err = logc.GetTopicInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.SequenceNumber)
	assert.NotEmpty(t, info.RunningHash)
}

func TestRedisLogRunningHashChanges(t *testing.T) {
	logc, _ := newTestRedisLog(t)
	ctx := context.Background()

	id, err := logc.CreateTopic(ctx, "memo", true)
	require.NoError(t, err)

	_, err = logc.SubmitMessage(ctx, id, []byte("one"), "")
	require.NoError(t, err)
	first, err := logc.GetTopicInfo(ctx, id)
	require.NoError(t, err)

	_, err = logc.SubmitMessage(ctx, id, []byte("two"), "")
	require.NoError(t, err)
	second, err := logc.GetTopicInfo(ctx, id)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunningHash, second.RunningHash)
}

func TestRedisLogUnknownTopic(t *testing.T) {
	logc, _ := newTestRedisLog(t)
	ctx := context.Background()

	_, err := logc.SubmitMessage(ctx, "0.0.9999", []byte("x"), "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = logc.GetTopicInfo(ctx, "0.0.9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisLogServerDown(t *testing.T) {
	logc, mr := newTestRedisLog(t)
	ctx := context.Background()

	id, err := logc.CreateTopic(ctx, "memo", true)
	require.NoError(t, err)

	mr.Close()

	_, err = logc.SubmitMessage(ctx, id, []byte("x"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable), "expected ErrUnavailable, got %v", err)
}
