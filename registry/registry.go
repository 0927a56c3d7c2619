package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aetherflow-dev/aetherflow/hcs10"
	"github.com/aetherflow-dev/aetherflow/pkg/observability"
	"github.com/aetherflow-dev/aetherflow/topic"
)

// Directory is the agent registry: it broadcasts identity claims to the
// shared registry topic and keeps an in-memory account-id index that is the
// source of truth for lookups and capacity checks. The broadcast is an
// announcement for external observers, not the consistency mechanism.
//
// Directory is safe for concurrent use. No global lock is held across
// consensus-service calls; identity uniqueness is resolved by reserving the
// account id in the index before any IO starts.
type Directory struct {
	logc topic.Log

	mu        sync.RWMutex
	agents    map[string]*AgentRecord
	byInbound map[topic.ID]string

	registryMu      sync.Mutex
	registryTopicID topic.ID

	ttl              int
	nextConnectionID atomic.Int64
}

// Option configures a Directory.
type Option func(*Directory)

// WithRegistryTopic reuses an existing registry topic instead of creating one.
func WithRegistryTopic(id topic.ID) Option {
	return func(d *Directory) { d.registryTopicID = id }
}

// WithTTL overrides the default memo TTL.
func WithTTL(seconds int) Option {
	return func(d *Directory) { d.ttl = seconds }
}

// NewDirectory creates a directory over the given topic log.
func NewDirectory(logc topic.Log, opts ...Option) *Directory {
	d := &Directory{
		logc:      logc,
		agents:    make(map[string]*AgentRecord),
		byInbound: make(map[topic.ID]string),
		ttl:       DefaultTTLSeconds,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InitializeRegistry obtains or creates the shared registry topic. It is
// idempotent: once a topic id is known, subsequent calls return it without
// touching the consensus service.
func (d *Directory) InitializeRegistry(ctx context.Context) (topic.ID, error) {
	d.registryMu.Lock()
	defer d.registryMu.Unlock()

	if d.registryTopicID != "" {
		return d.registryTopicID, nil
	}

	memo := hcs10.RegistryMemo(d.ttl).Encode()
	id, err := d.logc.CreateTopic(ctx, memo, true)
	if err != nil {
		return "", fmt.Errorf("create registry topic: %w", err)
	}
	d.registryTopicID = id
	log.Printf("registry: created registry topic %s", id)
	return id, nil
}

// RegistryTopic returns the registry topic id, or "" before initialization.
func (d *Directory) RegistryTopic() topic.ID {
	d.registryMu.Lock()
	defer d.registryMu.Unlock()
	return d.registryTopicID
}

// Register creates the agent's inbound and outbound topics, broadcasts a
// register envelope to the registry topic, and activates the record.
//
// Registration is idempotent keyed by account id: a second call for an
// already-active identity returns the first call's transaction id and
// changes nothing. Failure is atomic — if any topic creation or the
// broadcast fails, no record is left behind and the agent stays Inactive.
func (d *Directory) Register(ctx context.Context, agent *AgentRecord) (topic.TxID, error) {
	registryTopic, err := d.InitializeRegistry(ctx)
	if err != nil {
		return "", err
	}

	// Reserve the identity before any IO so concurrent registrations of the
	// same account id cannot create duplicate topics.
	d.mu.Lock()
	if existing, ok := d.agents[agent.AccountID]; ok {
		d.mu.Unlock()
		if existing.Status() == StatusActive {
			log.Printf("registry: duplicate registration for %s, returning existing record", agent.AccountID)
			return existing.RegistrationTx(), nil
		}
		return "", fmt.Errorf("register %s: registration in progress: %w", agent.AccountID, hcs10.ErrProtocolViolation)
	}
	d.agents[agent.AccountID] = agent
	d.mu.Unlock()

	txID, err := d.registerTopics(ctx, registryTopic, agent)
	if err != nil {
		// Atomic failure: drop the reservation, leave the record Inactive.
		d.mu.Lock()
		delete(d.agents, agent.AccountID)
		d.mu.Unlock()
		return "", err
	}

	d.mu.Lock()
	d.byInbound[agent.InboundTopic()] = agent.AccountID
	count := len(d.agents)
	d.mu.Unlock()
	observability.SetRegisteredAgents(count)

	log.Printf("registry: registered agent %s (inbound %s, outbound %s, tx %s)",
		agent.AccountID, agent.InboundTopic(), agent.OutboundTopic(), txID)
	return txID, nil
}

// registerTopics performs the IO half of registration: two topic creations
// and the registry broadcast.
func (d *Directory) registerTopics(ctx context.Context, registryTopic topic.ID, agent *AgentRecord) (topic.TxID, error) {
	ttl := agent.TTLSeconds
	if ttl <= 0 {
		ttl = d.ttl
	}

	inbound, err := d.logc.CreateTopic(ctx, hcs10.InboundMemo(ttl, agent.AccountID).Encode(), true)
	if err != nil {
		return "", fmt.Errorf("create inbound topic for %s: %w", agent.AccountID, err)
	}

	outbound, err := d.logc.CreateTopic(ctx, hcs10.OutboundMemo(ttl).Encode(), true)
	if err != nil {
		return "", fmt.Errorf("create outbound topic for %s: %w", agent.AccountID, err)
	}

	env := hcs10.NewRegister(agent.AccountID, string(agent.AgentType), agent.AgentName)
	payload, err := env.Encode()
	if err != nil {
		return "", err
	}

	txID, err := d.logc.SubmitMessage(ctx, registryTopic, payload, hcs10.OperationMemo(hcs10.OpRegister))
	if err != nil {
		return "", fmt.Errorf("announce %s to registry: %w", agent.AccountID, err)
	}

	agent.setRegistered(uuid.NewString(), registryTopic, inbound, outbound, txID)
	observability.RecordEnvelope(string(hcs10.OpRegister), "ok")
	return txID, nil
}

// Deregister broadcasts a delete envelope for the record identified by uid
// and moves it to the terminal Deleted state. The record stays in the index
// so its identity cannot be silently reused, but it no longer resolves by
// inbound topic.
func (d *Directory) Deregister(ctx context.Context, accountID, uid string) (topic.TxID, error) {
	agent, err := d.Get(accountID)
	if err != nil {
		return "", err
	}
	if agent.UID() != uid {
		return "", fmt.Errorf("deregister %s: uid mismatch: %w", accountID, hcs10.ErrProtocolViolation)
	}
	if agent.Status() == StatusDeleted {
		return "", fmt.Errorf("deregister %s: already deleted: %w", accountID, hcs10.ErrProtocolViolation)
	}

	registryTopic := d.RegistryTopic()
	if registryTopic == "" {
		return "", fmt.Errorf("deregister %s: registry not initialized: %w", accountID, hcs10.ErrProtocolViolation)
	}

	env := hcs10.NewDelete(uid, agent.AgentName)
	payload, err := env.Encode()
	if err != nil {
		return "", err
	}
	txID, err := d.logc.SubmitMessage(ctx, registryTopic, payload, hcs10.OperationMemo(hcs10.OpDelete))
	if err != nil {
		return "", fmt.Errorf("announce delete of %s: %w", accountID, err)
	}

	agent.setStatus(StatusDeleted)
	d.mu.Lock()
	delete(d.byInbound, agent.InboundTopic())
	d.mu.Unlock()
	observability.RecordEnvelope(string(hcs10.OpDelete), "ok")

	log.Printf("registry: deregistered agent %s (tx %s)", accountID, txID)
	return txID, nil
}

// Info returns the registry topic's metadata.
func (d *Directory) Info(ctx context.Context) (*topic.Info, error) {
	registryTopic := d.RegistryTopic()
	if registryTopic == "" {
		return nil, fmt.Errorf("registry not initialized: %w", hcs10.ErrProtocolViolation)
	}
	return d.logc.GetTopicInfo(ctx, registryTopic)
}

// Get returns the record for an account id, or hcs10.ErrUnknownAgent.
func (d *Directory) Get(accountID string) (*AgentRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agent, ok := d.agents[accountID]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", accountID, hcs10.ErrUnknownAgent)
	}
	return agent, nil
}

// FindByInboundTopic resolves an inbound topic id to its owning record.
func (d *Directory) FindByInboundTopic(id topic.ID) (*AgentRecord, error) {
	d.mu.RLock()
	accountID, ok := d.byInbound[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inbound topic %s: %w", id, hcs10.ErrUnknownAgent)
	}
	return d.Get(accountID)
}

// List returns snapshots of every known record.
func (d *Directory) List() []Snapshot {
	d.mu.RLock()
	agents := make([]*AgentRecord, 0, len(d.agents))
	for _, a := range d.agents {
		agents = append(agents, a)
	}
	d.mu.RUnlock()

	out := make([]Snapshot, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Snapshot())
	}
	return out
}

// NextConnectionID assigns the next monotonic connection sequence number.
// Unique per Directory instance.
func (d *Directory) NextConnectionID() int64 {
	return d.nextConnectionID.Add(1)
}

// Log exposes the underlying topic log for the protocol packages built on
// the same directory.
func (d *Directory) Log() topic.Log {
	return d.logc
}

// TTL returns the directory's default memo TTL in seconds.
func (d *Directory) TTL() int {
	return d.ttl
}
