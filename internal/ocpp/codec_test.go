package ocpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evbalanz/balanzd/internal/modelerr"
)

func TestDecodeEnvelopeCall(t *testing.T) {
	env, err := decodeEnvelope([]byte(`[2,"123","Heartbeat",{}]`))
	require.NoError(t, err)
	assert.Equal(t, messageTypeCall, env.messageType)
	assert.Equal(t, "123", env.uniqueID)
	assert.Equal(t, "Heartbeat", env.action)
}

func TestDecodeEnvelopeCallResult(t *testing.T) {
	env, err := decodeEnvelope([]byte(`[3,"123",{"status":"Accepted"}]`))
	require.NoError(t, err)
	assert.Equal(t, messageTypeCallResult, env.messageType)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(env.payload))
}

func TestDecodeEnvelopeCallError(t *testing.T) {
	env, err := decodeEnvelope([]byte(`[4,"123","NotSupported","bad action",{}]`))
	require.NoError(t, err)
	assert.Equal(t, messageTypeCallError, env.messageType)
	assert.Equal(t, "NotSupported", env.errorCode)
	assert.Equal(t, "bad action", env.errorDesc)
}

func TestDecodeEnvelopeRejectsTooFewElements(t *testing.T) {
	_, err := decodeEnvelope([]byte(`[2,"123"]`))
	assert.Error(t, err)
}

func TestDecodeEnvelopeRejectsUnknownMessageType(t *testing.T) {
	_, err := decodeEnvelope([]byte(`[9,"123","x",{}]`))
	assert.Error(t, err)
}

func TestEncodeCallProducesFourElementArray(t *testing.T) {
	frame, err := encodeCall("abc", "Heartbeat", map[string]any{})
	require.NoError(t, err)
	assert.JSONEq(t, `[2,"abc","Heartbeat",{}]`, string(frame))
}

func TestEncodeCallErrorIncludesEmptyDetails(t *testing.T) {
	frame, err := encodeCallError("abc", "ProtocolError", "bad frame")
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"abc","ProtocolError","bad frame",{}]`, string(frame))
}

func TestErrorCodeForMapsKinds(t *testing.T) {
	assert.Equal(t, "ProtocolError", errorCodeFor(modelerr.ProtocolError))
	assert.Equal(t, "GenericError", errorCodeFor(modelerr.NotFound))
	assert.Equal(t, "PropertyConstraintViolation", errorCodeFor(modelerr.IllegalArgument))
	assert.Equal(t, "InternalError", errorCodeFor(modelerr.Unknown))
}
