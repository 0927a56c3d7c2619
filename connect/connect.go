// Package connect implements the connection handshake: a connection request
// posted to a peer's inbound topic, a private connection topic created for
// the pair, and a connection_created notification delivered to each
// participant. Once both notifications have been appended the session is
// established; no further acknowledgment is required.
package connect

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aetherflow-dev/aetherflow/hcs10"
	"github.com/aetherflow-dev/aetherflow/pkg/observability"
	"github.com/aetherflow-dev/aetherflow/registry"
	"github.com/aetherflow-dev/aetherflow/topic"
)

// SessionState is the lifecycle state of a connection session.
type SessionState string

const (
	// StateRequested means the connection topic exists but at least one
	// participant has not yet been notified.
	StateRequested SessionState = "requested"
	// StateCreated means both participants have received their
	// connection_created notification.
	StateCreated SessionState = "created"
	// StateClosed is declared terminal but the protocol surface defines no
	// transition into it; connection teardown is an open gap in the
	// upstream standard and is deliberately not invented here.
	StateClosed SessionState = "closed"
)

// Session is one private connection between two agents.
type Session struct {
	// ConnectionID is the monotonic sequence number, unique per directory.
	ConnectionID int64
	// TopicID is the private connection channel.
	TopicID topic.ID
	// ParticipantA is the requester's account id.
	ParticipantA string
	// ParticipantB is the accepter's account id.
	ParticipantB string

	mu        sync.Mutex
	state     SessionState
	createdAt time.Time
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CreatedAt returns when the connection topic was created.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Protocol drives connection handshakes over a directory's topic log.
// Protocol is safe for concurrent use; counter effects on any single agent
// remain serialized by that agent's record.
type Protocol struct {
	dir  *registry.Directory
	logc topic.Log

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewProtocol creates a connection protocol bound to a directory.
func NewProtocol(dir *registry.Directory) *Protocol {
	return &Protocol{
		dir:      dir,
		logc:     dir.Log(),
		sessions: make(map[int64]*Session),
	}
}

// RequestConnection appends a connection_request envelope to the target's
// inbound topic. The requester must be active with both topics assigned.
// On success the requester's sent counter is incremented; an unknown or
// malformed target leaves every record untouched.
func (p *Protocol) RequestConnection(ctx context.Context, from *registry.AgentRecord, toInbound topic.ID) (topic.TxID, error) {
	if from.Status() != registry.StatusActive || from.InboundTopic() == "" || from.OutboundTopic() == "" {
		return "", fmt.Errorf("agent %s is not active: %w", from.AccountID, hcs10.ErrProtocolViolation)
	}
	if toInbound == "" {
		return "", fmt.Errorf("empty target topic: %w", hcs10.ErrMalformed)
	}
	if _, err := p.dir.FindByInboundTopic(toInbound); err != nil {
		return "", err
	}

	env := hcs10.NewConnectionRequest(from.OperatorID(), from.AgentName)
	payload, err := env.Encode()
	if err != nil {
		return "", err
	}

	txID, err := p.logc.SubmitMessage(ctx, toInbound, payload, hcs10.OperationMemo(hcs10.OpConnectionRequest))
	if err != nil {
		observability.RecordEnvelope(string(hcs10.OpConnectionRequest), "error")
		return "", fmt.Errorf("connection request to %s: %w", toInbound, err)
	}

	from.IncrementMessagesSent()
	observability.RecordEnvelope(string(hcs10.OpConnectionRequest), "ok")
	log.Printf("connect: %s requested connection via %s (tx %s)", from.AccountID, toInbound, txID)
	return txID, nil
}

// EstablishConnection accepts a pending request between two agents: it
// creates the private connection topic (its memo references the requester's
// inbound topic and a fresh connection id) and notifies both participants.
//
// The two notifications run concurrently but fail independently: a
// capacity-exceeded accepter does not undo the requester's notification or
// any existing session. The session reaches StateCreated only when both
// notifications are appended.
func (p *Protocol) EstablishConnection(ctx context.Context, requester, accepter *registry.AgentRecord) (*Session, error) {
	if requester.Status() != registry.StatusActive || accepter.Status() != registry.StatusActive {
		return nil, fmt.Errorf("both participants must be active: %w", hcs10.ErrProtocolViolation)
	}

	connID := p.dir.NextConnectionID()
	memo := hcs10.ConnectionMemo(p.dir.TTL(), requester.InboundTopic(), connID)

	topicID, err := p.logc.CreateTopic(ctx, memo.Encode(), true)
	if err != nil {
		observability.RecordHandshake("error")
		return nil, fmt.Errorf("create connection topic: %w", err)
	}

	session := &Session{
		ConnectionID: connID,
		TopicID:      topicID,
		ParticipantA: requester.AccountID,
		ParticipantB: accepter.AccountID,
		state:        StateRequested,
		createdAt:    time.Now().UTC(),
	}
	p.mu.Lock()
	p.sessions[connID] = session
	p.mu.Unlock()

	// Plain errgroup: no shared cancellation, each notification runs to
	// completion and fails only its own participant.
	var g errgroup.Group
	g.Go(func() error {
		return p.NotifyConnectionCreated(ctx, requester, accepter, topicID, connID)
	})
	g.Go(func() error {
		return p.NotifyConnectionCreated(ctx, accepter, requester, topicID, connID)
	})
	if err := g.Wait(); err != nil {
		observability.RecordHandshake("partial")
		return session, err
	}

	session.setState(StateCreated)
	observability.RecordHandshake("ok")
	log.Printf("connect: established connection %d between %s and %s on %s",
		connID, requester.AccountID, accepter.AccountID, topicID)
	return session, nil
}

// NotifyConnectionCreated appends a connection_created envelope to the
// receiving agent's inbound topic, naming the peer. A connection slot is
// reserved before the append so capacity is enforced atomically; the slot is
// released if the append fails, and the received counter moves only after a
// successful append.
func (p *Protocol) NotifyConnectionCreated(ctx context.Context, to, from *registry.AgentRecord, connectionTopic topic.ID, connectionID int64) error {
	if err := to.AddConnection(); err != nil {
		observability.RecordEnvelope(string(hcs10.OpConnectionCreated), "capacity")
		return fmt.Errorf("notify %s: %w", to.AccountID, err)
	}

	env := hcs10.NewConnectionCreated(from.OperatorID(), connectionTopic, from.AccountID, connectionID, from.AgentName)
	payload, err := env.Encode()
	if err != nil {
		to.ReleaseConnection()
		return err
	}

	if _, err := p.logc.SubmitMessage(ctx, to.InboundTopic(), payload, hcs10.OperationMemo(hcs10.OpConnectionCreated)); err != nil {
		to.ReleaseConnection()
		observability.RecordEnvelope(string(hcs10.OpConnectionCreated), "error")
		return fmt.Errorf("notify %s: %w", to.AccountID, err)
	}

	to.IncrementMessagesReceived()
	observability.AddActiveConnections(1)
	observability.RecordEnvelope(string(hcs10.OpConnectionCreated), "ok")
	return nil
}

// Session returns the session with the given connection id.
func (p *Protocol) Session(connectionID int64) (*Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %d: %w", connectionID, hcs10.ErrUnknownAgent)
	}
	return s, nil
}

// Sessions returns all sessions tracked by this protocol instance.
func (p *Protocol) Sessions() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	return out
}
