// Package hcs10 implements the HCS-10 OpenConvAI wire layer: the compact
// memo strings attached to topics at creation time and the JSON envelopes
// posted into them. The memo lets any reader of a topic-info query recover
// the topic's role without extra lookups; the envelope is a tagged union
// validated eagerly so that no malformed operation reaches protocol state.
package hcs10

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aetherflow-dev/aetherflow/topic"
)

// Marker is the constant protocol marker carried by every memo and envelope.
const Marker = "hcs-10"

// TopicType distinguishes the role of a topic.
type TopicType int

const (
	// TopicInbound receives connection requests and notifications for one agent.
	TopicInbound TopicType = 0
	// TopicOutbound records an agent's own activity.
	TopicOutbound TopicType = 1
	// TopicConnection is the private channel shared by two connected agents.
	TopicConnection TopicType = 2
	// TopicRegistry is the shared directory broadcast channel.
	TopicRegistry TopicType = 3
)

// Visibility of a topic.
type Visibility int

const (
	// Public topics are readable by anyone following the registry.
	Public Visibility = 0
	// Private topics are shared between connection participants only.
	Private Visibility = 1
)

// Memo is the decoded form of a topic-creation memo:
//
//	<marker>:<visibility>:<ttlSeconds>:<type>[:<extra>...]
//
// Extra carries contextual data: the creator's account id for an inbound
// topic, or the requester's inbound topic id plus the connection sequence
// number for a connection topic.
type Memo struct {
	Visibility Visibility
	TTL        int
	Type       TopicType
	Extra      []string
}

// RegistryMemo describes the shared registry topic.
func RegistryMemo(ttl int) Memo {
	return Memo{Visibility: Public, TTL: ttl, Type: TopicRegistry}
}

// InboundMemo describes an agent's inbound topic; the extra field names the
// owning account so readers can route requests.
func InboundMemo(ttl int, accountID string) Memo {
	return Memo{Visibility: Public, TTL: ttl, Type: TopicInbound, Extra: []string{accountID}}
}

// OutboundMemo describes an agent's outbound topic.
func OutboundMemo(ttl int) Memo {
	return Memo{Visibility: Public, TTL: ttl, Type: TopicOutbound}
}

// ConnectionMemo describes a private connection topic. It references the
// requester's inbound topic and the connection sequence number so either
// participant can recover the pairing from topic info alone.
func ConnectionMemo(ttl int, requesterInbound topic.ID, connectionID int64) Memo {
	return Memo{
		Visibility: Private,
		TTL:        ttl,
		Type:       TopicConnection,
		Extra:      []string{string(requesterInbound), strconv.FormatInt(connectionID, 10)},
	}
}

// Encode renders the memo in wire form.
func (m Memo) Encode() string {
	s := fmt.Sprintf("%s:%d:%d:%d", Marker, m.Visibility, m.TTL, m.Type)
	if len(m.Extra) > 0 {
		s += ":" + strings.Join(m.Extra, ":")
	}
	return s
}

// String implements fmt.Stringer.
func (m Memo) String() string { return m.Encode() }

// DecodeMemo parses a topic-creation memo. Malformed input yields a
// *MalformedError; it never panics.
func DecodeMemo(s string) (Memo, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return Memo{}, malformed(s, "expected at least 4 colon-delimited fields, got %d", len(parts))
	}
	if parts[0] != Marker {
		return Memo{}, malformed(s, "unknown protocol marker %q", parts[0])
	}
	if parts[1] == "op" {
		return Memo{}, malformed(s, "operation memo is not a topic memo")
	}

	vis, err := strconv.Atoi(parts[1])
	if err != nil || (vis != int(Public) && vis != int(Private)) {
		return Memo{}, malformed(s, "invalid visibility %q", parts[1])
	}
	ttl, err := strconv.Atoi(parts[2])
	if err != nil || ttl < 0 {
		return Memo{}, malformed(s, "invalid ttl %q", parts[2])
	}
	typ, err := strconv.Atoi(parts[3])
	if err != nil || typ < int(TopicInbound) || typ > int(TopicRegistry) {
		return Memo{}, malformed(s, "invalid topic type %q", parts[3])
	}

	m := Memo{Visibility: Visibility(vis), TTL: ttl, Type: TopicType(typ)}
	if len(parts) > 4 {
		m.Extra = parts[4:]
	}
	return m, nil
}

// ConnectionRef extracts the requester inbound topic and connection id from a
// connection-topic memo.
func (m Memo) ConnectionRef() (topic.ID, int64, error) {
	if m.Type != TopicConnection {
		return "", 0, malformed(m.Encode(), "not a connection memo")
	}
	if len(m.Extra) < 2 {
		return "", 0, malformed(m.Encode(), "connection memo missing inbound topic or connection id")
	}
	id, err := strconv.ParseInt(m.Extra[1], 10, 64)
	if err != nil {
		return "", 0, malformed(m.Encode(), "invalid connection id %q", m.Extra[1])
	}
	return topic.ID(m.Extra[0]), id, nil
}

// Operation memo codes attached to submit transactions, one pair per
// operation. These mirror the registry's published enumeration.
var opMemoCodes = map[Operation][2]int{
	OpRegister:          {0, 0},
	OpDelete:            {1, 0},
	OpConnectionRequest: {3, 1},
	OpConnectionCreated: {4, 1},
	OpMessage:           {6, 3},
	OpTransaction:       {7, 3},
}

// OperationMemo renders the transaction memo for an operation:
// "<marker>:op:<code>:<sub>". Unknown operations yield an empty memo.
func OperationMemo(op Operation) string {
	codes, ok := opMemoCodes[op]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:op:%d:%d", Marker, codes[0], codes[1])
}
