// Package crypto implements the Encryptor (spec §4.1): a single
// shared AES-256-GCM key, random 12-byte nonce prepended to the
// ciphertext, no associated data.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/noetl/noetl/internal/apperrors"
)

const (
	// KeySize is the required key length in bytes (AES-256).
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

// Encryptor seals and opens blobs with a single process-wide key.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor builds an Encryptor from a raw 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, apperrors.NewCryptoError("new encryptor", errWrongKeySize(len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewCryptoError("aes cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.NewCryptoError("gcm", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// NewEncryptorFromBase64 decodes a base64-encoded 32-byte key and
// builds an Encryptor from it.
func NewEncryptorFromBase64(encoded string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.NewCryptoError("decode key", err)
	}
	return NewEncryptor(key)
}

// GenerateKey returns a random 32-byte key suitable for NewEncryptor.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, apperrors.NewCryptoError("generate key", err)
	}
	return key, nil
}

// GenerateKeyBase64 returns a random key, base64 encoded.
func GenerateKeyBase64() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext, returning nonce||ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperrors.NewCryptoError("nonce", err)
	}
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext blob produced by Encrypt. Any bit
// flip in b causes this to fail with a crypto error (§8).
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	ns := e.gcm.NonceSize()
	if len(blob) < ns {
		return nil, apperrors.NewCryptoError("decrypt", errCiphertextTooShort)
	}
	nonce, data := blob[:ns], blob[ns:]
	plaintext, err := e.gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, apperrors.NewCryptoError("decrypt", err)
	}
	return plaintext, nil
}

// EncryptJSON marshals v and seals it.
func (e *Encryptor) EncryptJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.NewCryptoError("marshal", err)
	}
	return e.Encrypt(data)
}

// DecryptJSON opens blob and unmarshals it into v.
func (e *Encryptor) DecryptJSON(blob []byte, v any) error {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return apperrors.NewCryptoError("unmarshal", err)
	}
	return nil
}

func errWrongKeySize(got int) error {
	return fmt.Errorf("key must be %d bytes, got %d", KeySize, got)
}

var errCiphertextTooShort = fmt.Errorf("ciphertext too short")
