package hcs10

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aetherflow-dev/aetherflow/topic"
)

// Operation identifies the single action an envelope carries.
type Operation string

const (
	// OpRegister announces an agent to the registry topic.
	OpRegister Operation = "register"
	// OpDelete removes an agent from the registry topic.
	OpDelete Operation = "delete"
	// OpConnectionRequest asks the receiving agent to open a connection.
	OpConnectionRequest Operation = "connection_request"
	// OpConnectionCreated tells a participant its connection topic exists.
	OpConnectionCreated Operation = "connection_created"
	// OpMessage is an ordinary payload on a connection topic.
	OpMessage Operation = "message"
	// OpTransaction requests approval of an externally scheduled transaction.
	OpTransaction Operation = "transaction"
)

// Envelope is the wire unit posted to any topic. Every envelope carries
// exactly one operation; decoding validates the operation's required fields
// eagerly so that unknown or incomplete payloads are rejected before any
// state mutation.
type Envelope struct {
	// P is the constant protocol marker.
	P string `json:"p"`
	// Op is the operation this envelope performs.
	Op Operation `json:"op"`
	// OperatorID is the sender's compound address "accountId@topicId".
	OperatorID string `json:"operator_id,omitempty"`
	// AccountID is the registering agent's identity (register only).
	AccountID string `json:"account_id,omitempty"`
	// UID identifies the record being removed (delete only).
	UID string `json:"uid,omitempty"`
	// ConnectionTopicID names the private channel (connection_created only).
	ConnectionTopicID string `json:"connection_topic_id,omitempty"`
	// ConnectedAccountID names the peer (connection_created only).
	ConnectedAccountID string `json:"connected_account_id,omitempty"`
	// ConnectionID is the monotonic connection sequence number.
	ConnectionID int64 `json:"connection_id,omitempty"`
	// Data is the opaque payload (message, transaction).
	Data string `json:"data,omitempty"`
	// ScheduleID references the pending multi-party transaction (transaction only).
	ScheduleID string `json:"schedule_id,omitempty"`
	// M is a free-text human-readable note.
	M string `json:"m,omitempty"`
}

// FormatOperatorID builds the compound sender address "accountId@topicId".
func FormatOperatorID(accountID string, topicID topic.ID) string {
	return fmt.Sprintf("%s@%s", accountID, topicID)
}

// ParseOperatorID splits a compound address into account id and topic id.
func ParseOperatorID(s string) (accountID string, topicID topic.ID, err error) {
	account, top, ok := strings.Cut(s, "@")
	if !ok || account == "" || top == "" {
		return "", "", malformed(s, "operator id must be accountId@topicId")
	}
	return account, topic.ID(top), nil
}

// NewRegister builds a register envelope for the registry topic.
func NewRegister(accountID, agentType, agentName string) *Envelope {
	return &Envelope{
		P:         Marker,
		Op:        OpRegister,
		AccountID: accountID,
		M:         fmt.Sprintf("Registering %s agent: %s", agentType, agentName),
	}
}

// NewDelete builds a delete envelope for the registry topic.
func NewDelete(uid, agentName string) *Envelope {
	return &Envelope{
		P:   Marker,
		Op:  OpDelete,
		UID: uid,
		M:   fmt.Sprintf("Removing agent %s from registry.", agentName),
	}
}

// NewConnectionRequest builds a connection request for a peer's inbound topic.
func NewConnectionRequest(operatorID, fromName string) *Envelope {
	return &Envelope{
		P:          Marker,
		Op:         OpConnectionRequest,
		OperatorID: operatorID,
		M:          fmt.Sprintf("Requesting connection from %s", fromName),
	}
}

// NewConnectionCreated builds the handshake-result notification delivered to
// one participant's inbound topic.
func NewConnectionCreated(operatorID string, connectionTopic topic.ID, peerAccountID string, connectionID int64, peerName string) *Envelope {
	return &Envelope{
		P:                  Marker,
		Op:                 OpConnectionCreated,
		OperatorID:         operatorID,
		ConnectionTopicID:  string(connectionTopic),
		ConnectedAccountID: peerAccountID,
		ConnectionID:       connectionID,
		M:                  fmt.Sprintf("Connection established with %s", peerName),
	}
}

// NewMessage builds an ordinary message for a connection topic.
func NewMessage(operatorID, data string) *Envelope {
	return &Envelope{
		P:          Marker,
		Op:         OpMessage,
		OperatorID: operatorID,
		Data:       data,
		M:          "Standard communication.",
	}
}

// NewTransaction builds a transaction-approval request for a connection topic.
func NewTransaction(operatorID, scheduleID, data string) *Envelope {
	return &Envelope{
		P:          Marker,
		Op:         OpTransaction,
		OperatorID: operatorID,
		ScheduleID: scheduleID,
		Data:       data,
		M:          "For your approval.",
	}
}

// Validate checks that the envelope carries its operation's required fields.
func (e *Envelope) Validate() error {
	if e.P != Marker {
		return malformed(string(e.Op), "unknown protocol marker %q", e.P)
	}

	switch e.Op {
	case OpRegister:
		if e.AccountID == "" {
			return malformed(string(e.Op), "register requires account_id")
		}
	case OpDelete:
		if e.UID == "" {
			return malformed(string(e.Op), "delete requires uid")
		}
	case OpConnectionRequest:
		if _, _, err := ParseOperatorID(e.OperatorID); err != nil {
			return err
		}
	case OpConnectionCreated:
		if _, _, err := ParseOperatorID(e.OperatorID); err != nil {
			return err
		}
		if e.ConnectionTopicID == "" || e.ConnectedAccountID == "" {
			return malformed(string(e.Op), "connection_created requires connection_topic_id and connected_account_id")
		}
		if e.ConnectionID <= 0 {
			return malformed(string(e.Op), "connection_created requires a positive connection_id")
		}
	case OpMessage:
		if _, _, err := ParseOperatorID(e.OperatorID); err != nil {
			return err
		}
		if e.Data == "" {
			return malformed(string(e.Op), "message requires data")
		}
	case OpTransaction:
		if _, _, err := ParseOperatorID(e.OperatorID); err != nil {
			return err
		}
		if e.ScheduleID == "" {
			return malformed(string(e.Op), "transaction requires schedule_id")
		}
	default:
		return malformed(string(e.Op), "unknown operation")
	}
	return nil
}

// Encode validates the envelope and renders it as JSON.
func (e *Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses and validates a wire payload. Any failure yields an
// error satisfying errors.Is(err, ErrMalformed); a reader processing a mixed
// stream drops the payload and keeps going.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, malformed(string(payload), "invalid json: %v", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
