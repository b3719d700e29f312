package ocpp

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenSHA256MatchesStdlibDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(sum[:]), genSHA256("hello"))
}

func TestCheckBasicAuthAcceptsMatchingDigest(t *testing.T) {
	stored := genSHA256("Basic abc123")
	assert.True(t, checkBasicAuth("Basic abc123", stored))
}

func TestCheckBasicAuthRejectsMismatch(t *testing.T) {
	stored := genSHA256("Basic abc123")
	assert.False(t, checkBasicAuth("Basic wrong", stored))
}

func TestCheckBasicAuthRejectsEmptyStoredSHA(t *testing.T) {
	assert.False(t, checkBasicAuth("Basic abc123", ""))
}

func TestGenPasswordProducesRequestedLengthFromAlphabet(t *testing.T) {
	password, err := genPassword(16)
	require.NoError(t, err)
	assert.Len(t, password, 16)
	for _, c := range password {
		assert.Contains(t, authAlphabet, string(c))
	}
}

func TestGenPasswordDiffersAcrossCalls(t *testing.T) {
	a, err := genPassword(16)
	require.NoError(t, err)
	b, err := genPassword(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
