package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNestedForm(t *testing.T) {
	env, err := Decode([]byte(`{"type":"chat","payload":{"provider":"claude","text":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "chat", env.Type)

	var p ChatPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "claude", p.Provider)
	assert.Equal(t, "hi", p.Text)
}

func TestDecodeLegacyFlatForm(t *testing.T) {
	env, err := Decode([]byte(`{"type":"chat","provider":"claude","text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "chat", env.Type)

	var p ChatPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "claude", p.Provider)
	assert.Equal(t, "hi", p.Text)
}

func TestDecodeMissingTypeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestDecodeBareTypeHasNilPayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", env.Type)
	assert.Nil(t, env.Payload)
}

func TestNewAndBytesRoundTrip(t *testing.T) {
	env := MustNew(EvtPong, nil)
	raw, err := env.Bytes()
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, EvtPong, decoded.Type)
}

func TestDecodePayloadOnEmptyPayloadLeavesZeroValue(t *testing.T) {
	env := Envelope{Type: "stop"}
	var p StopPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, StopPayload{}, p)
}
