// Package registry implements the agent directory: durable agent records,
// the shared registry topic, and the account-id index that answers "is this
// agent known" without replaying the broadcast log.
package registry

import (
	"sync"
	"time"

	"github.com/aetherflow-dev/aetherflow/hcs10"
	"github.com/aetherflow-dev/aetherflow/topic"
)

// AgentStatus is the lifecycle state of an agent record.
type AgentStatus string

const (
	// StatusInactive is the initial state; the record exists but its topics
	// or directory broadcast are not yet in place.
	StatusInactive AgentStatus = "inactive"
	// StatusActive means both topics exist and the registry broadcast
	// succeeded.
	StatusActive AgentStatus = "active"
	// StatusSuspended means the agent is temporarily barred from the
	// protocol surface.
	StatusSuspended AgentStatus = "suspended"
	// StatusDeleted is terminal; no further transitions.
	StatusDeleted AgentStatus = "deleted"
)

// AgentType is the closed set of agent roles.
type AgentType string

const (
	TypeTrafficOptimizer  AgentType = "traffic_optimizer"
	TypeDataValidator     AgentType = "data_validator"
	TypeRewardDistributor AgentType = "reward_distributor"
	TypeFederatedLearner  AgentType = "federated_learner"
	TypeMarketMaker       AgentType = "market_maker"
	TypeGeneralPurpose    AgentType = "general_purpose"
)

// TrustLevel grades how much weight peers should give an agent.
type TrustLevel string

const (
	TrustBasic    TrustLevel = "basic"
	TrustTrusted  TrustLevel = "trusted"
	TrustVerified TrustLevel = "verified"
)

// Defaults applied by NewAgentRecord.
const (
	DefaultTTLSeconds     = 60
	DefaultMaxConnections = 100
)

// AgentRecord is the durable state of one participant. Identity and
// configuration fields are set at construction; everything that changes over
// the record's lifetime is guarded by a per-record mutex so that concurrent
// register/connect/send operations on the same agent are serialized while
// operations on different agents proceed in parallel.
//
// Records are owned by the Directory and mutated only through
// Directory/Protocol/Router operations.
type AgentRecord struct {
	// AccountID is the globally unique, immutable identity handle.
	AccountID string
	// AgentName is the display name.
	AgentName string
	// AgentType is the agent's role.
	AgentType AgentType
	// Capabilities advertises what the agent can do.
	Capabilities []string
	// ProfileMetadata carries free-form profile data.
	ProfileMetadata map[string]any
	// TTLSeconds is the message validity window encoded into topic memos.
	TTLSeconds int
	// MaxConnections bounds concurrent connections.
	MaxConnections int

	mu                sync.Mutex
	uid               string
	status            AgentStatus
	registryTopicID   topic.ID
	inboundTopicID    topic.ID
	outboundTopicID   topic.ID
	registrationTxID  topic.TxID
	activeConnections int
	messagesSent      int64
	messagesReceived  int64
	successfulTxns    int64
	failedTxns        int64
	reputationScore   float64
	trustLevel        TrustLevel
	lastActivity      time.Time
	createdAt         time.Time
	updatedAt         time.Time
}

// NewAgentRecord creates a record in StatusInactive with protocol defaults.
func NewAgentRecord(accountID, name string, agentType AgentType) *AgentRecord {
	now := time.Now().UTC()
	return &AgentRecord{
		AccountID:       accountID,
		AgentName:       name,
		AgentType:       agentType,
		TTLSeconds:      DefaultTTLSeconds,
		MaxConnections:  DefaultMaxConnections,
		status:          StatusInactive,
		reputationScore: 1.0,
		trustLevel:      TrustBasic,
		lastActivity:    now,
		createdAt:       now,
		updatedAt:       now,
	}
}

// UID returns the directory-assigned identity of this record, used by the
// delete broadcast. Empty until registration completes.
func (a *AgentRecord) UID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uid
}

// Status returns the current lifecycle state.
func (a *AgentRecord) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// InboundTopic returns the agent's inbound topic id.
func (a *AgentRecord) InboundTopic() topic.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inboundTopicID
}

// OutboundTopic returns the agent's outbound topic id.
func (a *AgentRecord) OutboundTopic() topic.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outboundTopicID
}

// RegistrationTx returns the transaction id of the registry broadcast.
func (a *AgentRecord) RegistrationTx() topic.TxID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registrationTxID
}

// OperatorID returns the agent's compound sender address
// "accountId@inboundTopicId".
func (a *AgentRecord) OperatorID() string {
	return hcs10.FormatOperatorID(a.AccountID, a.InboundTopic())
}

// ActiveConnections returns the current connection count.
func (a *AgentRecord) ActiveConnections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeConnections
}

// MessagesSent returns the monotonic sent counter.
func (a *AgentRecord) MessagesSent() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messagesSent
}

// MessagesReceived returns the monotonic received counter.
func (a *AgentRecord) MessagesReceived() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messagesReceived
}

// ReputationScore returns the agent's reputation in [0,1].
func (a *AgentRecord) ReputationScore() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reputationScore
}

// TrustLevel returns the agent's trust grade.
func (a *AgentRecord) TrustLevel() TrustLevel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trustLevel
}

// LastActivity returns the timestamp of the last counted operation.
func (a *AgentRecord) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}

// IncrementMessagesSent bumps the sent counter. Called only after the
// corresponding append succeeded.
func (a *AgentRecord) IncrementMessagesSent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messagesSent++
	a.touchLocked()
}

// IncrementMessagesReceived bumps the received counter. Called only after
// the corresponding append succeeded.
func (a *AgentRecord) IncrementMessagesReceived() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messagesReceived++
	a.touchLocked()
}

// AddConnection reserves one connection slot. It fails with
// hcs10.ErrCapacityExceeded when the record is already at MaxConnections,
// leaving every counter untouched.
func (a *AgentRecord) AddConnection() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeConnections >= a.MaxConnections {
		return hcs10.ErrCapacityExceeded
	}
	a.activeConnections++
	a.touchLocked()
	return nil
}

// ReleaseConnection frees one connection slot. It never drops below zero.
func (a *AgentRecord) ReleaseConnection() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeConnections > 0 {
		a.activeConnections--
	}
	a.touchLocked()
}

// RecordTransaction counts the outcome of an approval request the agent
// initiated and nudges reputation toward the observed success ratio.
func (a *AgentRecord) RecordTransaction(succeeded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if succeeded {
		a.successfulTxns++
	} else {
		a.failedTxns++
	}
	total := a.successfulTxns + a.failedTxns
	if total > 0 {
		a.reputationScore = float64(a.successfulTxns) / float64(total)
	}
	a.touchLocked()
}

// SetTrustLevel upgrades or downgrades the agent's trust grade.
func (a *AgentRecord) SetTrustLevel(level TrustLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trustLevel = level
	a.touchLocked()
}

// touchLocked refreshes the activity timestamps. Caller holds a.mu.
func (a *AgentRecord) touchLocked() {
	now := time.Now().UTC()
	a.lastActivity = now
	a.updatedAt = now
}

// setRegistered finalizes a successful registration. Called by the Directory
// with all IO already done.
func (a *AgentRecord) setRegistered(uid string, registryTopic, inbound, outbound topic.ID, txID topic.TxID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uid = uid
	a.registryTopicID = registryTopic
	a.inboundTopicID = inbound
	a.outboundTopicID = outbound
	a.registrationTxID = txID
	a.status = StatusActive
	a.touchLocked()
}

// setStatus moves the record to a new lifecycle state.
func (a *AgentRecord) setStatus(s AgentStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
	a.touchLocked()
}

// Snapshot is a point-in-time copy of a record for callers outside the
// protocol core.
type Snapshot struct {
	AccountID         string         `json:"account_id"`
	AgentName         string         `json:"agent_name"`
	AgentType         AgentType      `json:"agent_type"`
	Status            AgentStatus    `json:"status"`
	UID               string         `json:"uid,omitempty"`
	InboundTopicID    topic.ID       `json:"inbound_topic_id,omitempty"`
	OutboundTopicID   topic.ID       `json:"outbound_topic_id,omitempty"`
	Capabilities      []string       `json:"capabilities,omitempty"`
	ProfileMetadata   map[string]any `json:"profile_metadata,omitempty"`
	TTLSeconds        int            `json:"ttl"`
	MaxConnections    int            `json:"max_connections"`
	ActiveConnections int            `json:"active_connections"`
	MessagesSent      int64          `json:"messages_sent"`
	MessagesReceived  int64          `json:"messages_received"`
	ReputationScore   float64        `json:"reputation_score"`
	TrustLevel        TrustLevel     `json:"trust_level"`
	LastActivity      time.Time      `json:"last_activity"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Snapshot returns a consistent copy of the record's state.
func (a *AgentRecord) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	caps := make([]string, len(a.Capabilities))
	copy(caps, a.Capabilities)
	return Snapshot{
		AccountID:         a.AccountID,
		AgentName:         a.AgentName,
		AgentType:         a.AgentType,
		Status:            a.status,
		UID:               a.uid,
		InboundTopicID:    a.inboundTopicID,
		OutboundTopicID:   a.outboundTopicID,
		Capabilities:      caps,
		ProfileMetadata:   a.ProfileMetadata,
		TTLSeconds:        a.TTLSeconds,
		MaxConnections:    a.MaxConnections,
		ActiveConnections: a.activeConnections,
		MessagesSent:      a.messagesSent,
		MessagesReceived:  a.messagesReceived,
		ReputationScore:   a.reputationScore,
		TrustLevel:        a.trustLevel,
		LastActivity:      a.lastActivity,
		CreatedAt:         a.createdAt,
	}
}
