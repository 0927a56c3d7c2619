package aetherflow

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow-dev/aetherflow/hcs10"
	"github.com/aetherflow-dev/aetherflow/pkg/config"
	"github.com/aetherflow-dev/aetherflow/registry"
	"github.com/aetherflow-dev/aetherflow/topic"
)

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.TopicBackend = "etcd"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewMemoryBackend(t *testing.T) {
	svc, err := New(config.Default())
	require.NoError(t, err)
	require.NotNil(t, svc.Directory)
	require.NotNil(t, svc.Connections)
	require.NotNil(t, svc.Router)

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	assert.NotEmpty(t, svc.Directory.RegistryTopic())
	require.NoError(t, svc.Stop(ctx))
}

// Two agents register, connect, and exchange a message over the private
// connection topic.
func TestAgentLifecycle(t *testing.T) {
	ctx := context.Background()
	logc := topic.NewMemoryLog("0.0.2", 0)
	svc, err := NewWithLog(config.Default(), logc)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	alpha := registry.NewAgentRecord("0.0.100", "alpha", registry.TypeTrafficOptimizer)
	beta := registry.NewAgentRecord("0.0.200", "beta", registry.TypeDataValidator)
	_, err = svc.Directory.Register(ctx, alpha)
	require.NoError(t, err)
	_, err = svc.Directory.Register(ctx, beta)
	require.NoError(t, err)

	// Alpha asks beta for a connection via beta's inbound topic.
	_, err = svc.Connections.RequestConnection(ctx, alpha, beta.InboundTopic())
	require.NoError(t, err)

	// Beta accepts; both sides are notified of the same connection.
	session, err := svc.Connections.EstablishConnection(ctx, alpha, beta)
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.ConnectionID)
	assert.Equal(t, 1, alpha.ActiveConnections())
	assert.Equal(t, 1, beta.ActiveConnections())

	// Alpha sends a message into the connection topic.
	_, err = svc.Router.SendMessage(ctx, alpha, session.TopicID, "hello")
	require.NoError(t, err)

	entries := logc.Entries(session.TopicID)
	require.Len(t, entries, 1)
	env, err := hcs10.DecodeEnvelope(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, hcs10.OpMessage, env.Op)
	assert.Equal(t, "hello", env.Data)
	assert.Equal(t, alpha.OperatorID(), env.OperatorID)

	// Counters reflect the traffic: request + message sent by alpha, one
	// handshake notification received by each.
	assert.Equal(t, int64(2), alpha.MessagesSent())
	assert.Equal(t, int64(1), alpha.MessagesReceived())
	assert.Equal(t, int64(1), beta.MessagesReceived())
}

// The same lifecycle runs unchanged over the Redis backend.
func TestAgentLifecycleRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logc := topic.NewRedisLogFromClient(client, "test:topic:", "0.0.2")

	svc, err := NewWithLog(config.Default(), logc)
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))

	alpha := registry.NewAgentRecord("0.0.100", "alpha", registry.TypeGeneralPurpose)
	beta := registry.NewAgentRecord("0.0.200", "beta", registry.TypeGeneralPurpose)
	_, err = svc.Directory.Register(ctx, alpha)
	require.NoError(t, err)
	_, err = svc.Directory.Register(ctx, beta)
	require.NoError(t, err)

	session, err := svc.Connections.EstablishConnection(ctx, alpha, beta)
	require.NoError(t, err)

	_, err = svc.Router.SendMessage(ctx, alpha, session.TopicID, "hello")
	require.NoError(t, err)

	info, err := svc.Log.GetTopicInfo(ctx, session.TopicID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.SequenceNumber)
}
