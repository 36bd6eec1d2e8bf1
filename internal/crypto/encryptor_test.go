package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptor(key)
	require.NoError(t, err)
	return enc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := mustEncryptor(t)
	blob, err := enc.Encrypt([]byte("plaintext"))
	require.NoError(t, err)
	plaintext, err := enc.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", string(plaintext))
}

func TestDecryptDetectsTampering(t *testing.T) {
	enc := mustEncryptor(t)
	blob, err := enc.Encrypt([]byte("plaintext"))
	require.NoError(t, err)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = enc.Decrypt(tampered)
	require.Error(t, err)
}

func TestNewEncryptorRejectsWrongKeySize(t *testing.T) {
	_, err := NewEncryptor([]byte("too-short"))
	require.Error(t, err)
}

func TestEncryptJSONRoundTrip(t *testing.T) {
	enc := mustEncryptor(t)
	blob, err := enc.EncryptJSON(map[string]string{"k": "v"})
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, enc.DecryptJSON(blob, &out))
	assert.Equal(t, "v", out["k"])

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xFF
	var out2 map[string]string
	err = enc.DecryptJSON(tampered, &out2)
	require.Error(t, err)
}

func TestGenerateKeyBase64DecodesToEncryptor(t *testing.T) {
	encoded, err := GenerateKeyBase64()
	require.NoError(t, err)
	enc, err := NewEncryptorFromBase64(encoded)
	require.NoError(t, err)
	require.NotNil(t, enc)
}
