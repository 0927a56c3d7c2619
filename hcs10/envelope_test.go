package hcs10

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorID(t *testing.T) {
	op := FormatOperatorID("0.0.100", "0.0.1001")
	assert.Equal(t, "0.0.100@0.0.1001", op)

	account, topicID, err := ParseOperatorID(op)
	require.NoError(t, err)
	assert.Equal(t, "0.0.100", account)
	assert.Equal(t, "0.0.1001", string(topicID))

	for _, bad := range []string{"", "0.0.100", "@0.0.1001", "0.0.100@"} {
		_, _, err := ParseOperatorID(bad)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", bad)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewConnectionCreated("0.0.200@0.0.1003", "0.0.1005", "0.0.100", 1, "alpha")

	payload, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
	assert.Equal(t, "hcs-10", decoded.P)
	assert.Equal(t, int64(1), decoded.ConnectionID)
}

func TestEnvelopeOmitsEmptyFields(t *testing.T) {
	payload, err := NewMessage("0.0.100@0.0.1001", "hello").Encode()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.NotContains(t, raw, "uid")
	assert.NotContains(t, raw, "schedule_id")
	assert.NotContains(t, raw, "connection_id")
	assert.Equal(t, "Standard communication.", raw["m"])
}

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr bool
	}{
		{"register_ok", NewRegister("0.0.100", "general_purpose", "alpha"), false},
		{"register_missing_account", &Envelope{P: Marker, Op: OpRegister}, true},
		{"delete_ok", NewDelete("uid-1", "alpha"), false},
		{"delete_missing_uid", &Envelope{P: Marker, Op: OpDelete}, true},
		{"connection_request_ok", NewConnectionRequest("0.0.100@0.0.1001", "alpha"), false},
		{"connection_request_bad_operator", &Envelope{P: Marker, Op: OpConnectionRequest, OperatorID: "nope"}, true},
		{"connection_created_ok", NewConnectionCreated("0.0.200@0.0.1003", "0.0.1005", "0.0.100", 1, "alpha"), false},
		{
			"connection_created_missing_topic",
			&Envelope{P: Marker, Op: OpConnectionCreated, OperatorID: "0.0.200@0.0.1003", ConnectedAccountID: "0.0.100", ConnectionID: 1},
			true,
		},
		{
			"connection_created_zero_id",
			&Envelope{P: Marker, Op: OpConnectionCreated, OperatorID: "0.0.200@0.0.1003", ConnectionTopicID: "0.0.1005", ConnectedAccountID: "0.0.100"},
			true,
		},
		{"message_ok", NewMessage("0.0.100@0.0.1001", "hello"), false},
		{"message_missing_data", &Envelope{P: Marker, Op: OpMessage, OperatorID: "0.0.100@0.0.1001"}, true},
		{"transaction_ok", NewTransaction("0.0.100@0.0.1001", "0.0.555", "swap"), false},
		{"transaction_missing_schedule", &Envelope{P: Marker, Op: OpTransaction, OperatorID: "0.0.100@0.0.1001", Data: "swap"}, true},
		{"wrong_marker", &Envelope{P: "hcs-11", Op: OpMessage, OperatorID: "0.0.100@0.0.1001", Data: "x"}, true},
		{"unknown_op", &Envelope{P: Marker, Op: Operation("shutdown")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformed), "expected ErrMalformed, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Unknown operations and junk payloads must come back as errors, never panics.
func TestDecodeEnvelopeMalformed(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("not json"),
		[]byte(`{"p":"hcs-10","op":"shutdown"}`),
		[]byte(`{"p":"hcs-10","op":"message"}`),
		[]byte(`{"p":"other","op":"message","operator_id":"0.0.1@0.0.2","data":"x"}`),
	}

	for _, payload := range inputs {
		env, err := DecodeEnvelope(payload)
		assert.Nil(t, env, "payload %q", payload)
		assert.ErrorIs(t, err, ErrMalformed, "payload %q", payload)
	}
}
