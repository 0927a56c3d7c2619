package hcs10

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		memo Memo
		wire string
	}{
		{
			name: "registry",
			memo: RegistryMemo(60),
			wire: "hcs-10:0:60:3",
		},
		{
			name: "inbound_with_account",
			memo: InboundMemo(60, "0.0.100"),
			wire: "hcs-10:0:60:0:0.0.100",
		},
		{
			name: "outbound",
			memo: OutboundMemo(90),
			wire: "hcs-10:0:90:1",
		},
		{
			name: "connection",
			memo: ConnectionMemo(60, "0.0.1001", 7),
			wire: "hcs-10:1:60:2:0.0.1001:7",
		},
		{
			name: "zero_ttl",
			memo: RegistryMemo(0),
			wire: "hcs-10:0:0:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.memo.Encode())

			decoded, err := DecodeMemo(tt.wire)
			require.NoError(t, err)
			assert.Equal(t, tt.memo, decoded)
			// A decoded memo re-encodes to the same wire form.
			assert.Equal(t, tt.wire, decoded.Encode())
		})
	}
}

func TestDecodeMemoMalformed(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{"empty", ""},
		{"too_few_fields", "hcs-10:0:60"},
		{"wrong_marker", "hcs-11:0:60:3"},
		{"operation_memo", "hcs-10:op:0:0"},
		{"visibility_not_numeric", "hcs-10:x:60:3"},
		{"visibility_out_of_range", "hcs-10:2:60:3"},
		{"ttl_not_numeric", "hcs-10:0:abc:3"},
		{"ttl_negative", "hcs-10:0:-1:3"},
		{"type_not_numeric", "hcs-10:0:60:z"},
		{"type_out_of_range", "hcs-10:0:60:4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMemo(tt.wire)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "expected ErrMalformed, got %v", err)

			var me *MalformedError
			assert.True(t, errors.As(err, &me))
		})
	}
}

func TestConnectionRef(t *testing.T) {
	memo := ConnectionMemo(60, "0.0.1001", 42)

	inbound, connID, err := memo.ConnectionRef()
	require.NoError(t, err)
	assert.Equal(t, "0.0.1001", string(inbound))
	assert.Equal(t, int64(42), connID)

	// Round trip through the wire form.
	decoded, err := DecodeMemo(memo.Encode())
	require.NoError(t, err)
	inbound, connID, err = decoded.ConnectionRef()
	require.NoError(t, err)
	assert.Equal(t, "0.0.1001", string(inbound))
	assert.Equal(t, int64(42), connID)
}

func TestConnectionRefErrors(t *testing.T) {
	_, _, err := RegistryMemo(60).ConnectionRef()
	assert.ErrorIs(t, err, ErrMalformed)

	short := Memo{Visibility: Private, TTL: 60, Type: TopicConnection, Extra: []string{"0.0.1001"}}
	_, _, err = short.ConnectionRef()
	assert.ErrorIs(t, err, ErrMalformed)

	bad := Memo{Visibility: Private, TTL: 60, Type: TopicConnection, Extra: []string{"0.0.1001", "seven"}}
	_, _, err = bad.ConnectionRef()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOperationMemo(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpRegister, "hcs-10:op:0:0"},
		{OpDelete, "hcs-10:op:1:0"},
		{OpConnectionRequest, "hcs-10:op:3:1"},
		{OpConnectionCreated, "hcs-10:op:4:1"},
		{OpMessage, "hcs-10:op:6:3"},
		{OpTransaction, "hcs-10:op:7:3"},
		{Operation("bogus"), ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, OperationMemo(tt.op), "op %s", tt.op)
	}
}
