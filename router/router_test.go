package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow-dev/aetherflow/hcs10"
	"github.com/aetherflow-dev/aetherflow/registry"
	"github.com/aetherflow-dev/aetherflow/topic"
)

// flakyLog turns every append into a backend failure once tripped.
type flakyLog struct {
	topic.Log
	failSubmit bool
}

var errBackend = errors.New("consensus service down")

func (f *flakyLog) SubmitMessage(ctx context.Context, topicID topic.ID, payload []byte, memo string) (topic.TxID, error) {
	if f.failSubmit {
		return "", errBackend
	}
	return f.Log.SubmitMessage(ctx, topicID, payload, memo)
}

func setupSender(t *testing.T, logc topic.Log) (*registry.Directory, *registry.AgentRecord, topic.ID) {
	t.Helper()
	ctx := context.Background()
	dir := registry.NewDirectory(logc)

	agent := registry.NewAgentRecord("0.0.100", "alpha", registry.TypeGeneralPurpose)
	_, err := dir.Register(ctx, agent)
	require.NoError(t, err)

	// A connection topic the sender writes into.
	memo := hcs10.ConnectionMemo(dir.TTL(), agent.InboundTopic(), dir.NextConnectionID())
	connTopic, err := logc.CreateTopic(ctx, memo.Encode(), true)
	require.NoError(t, err)
	return dir, agent, connTopic
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	logc := topic.NewMemoryLog("0.0.2", 0)
	dir, agent, connTopic := setupSender(t, logc)
	r := NewRouter(dir)

	txID, err := r.SendMessage(ctx, agent, connTopic, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.Equal(t, int64(1), agent.MessagesSent())

	entries := logc.Entries(connTopic)
	require.Len(t, entries, 1)
	env, err := hcs10.DecodeEnvelope(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, hcs10.OpMessage, env.Op)
	assert.Equal(t, "hello", env.Data)
	assert.Equal(t, agent.OperatorID(), env.OperatorID)
	assert.Equal(t, hcs10.OperationMemo(hcs10.OpMessage), entries[0].Memo)
}

func TestSendTransactionRequest(t *testing.T) {
	ctx := context.Background()
	logc := topic.NewMemoryLog("0.0.2", 0)
	dir, agent, connTopic := setupSender(t, logc)
	r := NewRouter(dir)

	_, err := r.SendTransactionRequest(ctx, agent, connTopic, "0.0.555", "swap 10 units")
	require.NoError(t, err)

	entries := logc.Entries(connTopic)
	require.Len(t, entries, 1)
	env, err := hcs10.DecodeEnvelope(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, hcs10.OpTransaction, env.Op)
	assert.Equal(t, "0.0.555", env.ScheduleID)
	assert.Equal(t, "swap 10 units", env.Data)
	assert.Equal(t, "For your approval.", env.M)
}

func TestSendMessageFailureLeavesCountersAlone(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyLog{Log: topic.NewMemoryLog("0.0.2", 0)}
	dir, agent, connTopic := setupSender(t, flaky)
	r := NewRouter(dir)

	flaky.failSubmit = true
	_, err := r.SendMessage(ctx, agent, connTopic, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int64(0), agent.MessagesSent())

	// One failure does not poison the router.
	flaky.failSubmit = false
	_, err = r.SendMessage(ctx, agent, connTopic, "hello again")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agent.MessagesSent())
}

func TestSendMessageInactiveSender(t *testing.T) {
	ctx := context.Background()
	dir, _, connTopic := setupSender(t, topic.NewMemoryLog("0.0.2", 0))
	r := NewRouter(dir)

	stranger := registry.NewAgentRecord("0.0.300", "gamma", registry.TypeGeneralPurpose)
	_, err := r.SendMessage(ctx, stranger, connTopic, "hello")
	assert.ErrorIs(t, err, hcs10.ErrProtocolViolation)
}

func TestSendMessageEmptyTopic(t *testing.T) {
	ctx := context.Background()
	dir, agent, _ := setupSender(t, topic.NewMemoryLog("0.0.2", 0))
	r := NewRouter(dir)

	_, err := r.SendMessage(ctx, agent, "", "hello")
	assert.ErrorIs(t, err, hcs10.ErrMalformed)
	assert.Equal(t, int64(0), agent.MessagesSent())
}

func TestRateLimitedSendCanceled(t *testing.T) {
	logc := topic.NewMemoryLog("0.0.2", 0)
	dir, agent, connTopic := setupSender(t, logc)
	// Burst of one: the second send must wait a full second.
	r := NewRouter(dir, WithRateLimit(1, 1))

	ctx := context.Background()
	_, err := r.SendMessage(ctx, agent, connTopic, "first")
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.SendMessage(canceled, agent, connTopic, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The canceled wait never reached the log and never moved counters.
	assert.Len(t, logc.Entries(connTopic), 1)
	assert.Equal(t, int64(1), agent.MessagesSent())
}
