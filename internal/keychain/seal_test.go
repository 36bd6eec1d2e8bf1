package keychain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)

	blob, err := sealer.Seal("key-a", map[string]any{"token": "x"})
	require.NoError(t, err)

	data, err := sealer.Open("key-a", blob)
	require.NoError(t, err)
	assert.Equal(t, "x", data["token"])
}

func TestOpenFailsUnderWrongCacheKey(t *testing.T) {
	sealer, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)

	blob, err := sealer.Seal("key-a", map[string]any{"token": "x"})
	require.NoError(t, err)

	_, err = sealer.Open("key-b", blob)
	assert.Error(t, err)
}

func TestNewSealerRejectsWrongKeySize(t *testing.T) {
	_, err := NewSealer(make([]byte, 16))
	assert.Error(t, err)
}
