package keychain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/noetl/noetl/internal/apperrors"
	"golang.org/x/crypto/hkdf"
)

// Sealer derives a per-cache-key subkey from a master key via HKDF,
// then seals/opens data under that subkey with AES-256-GCM. This
// mirrors the teacher's envelope crypto's derive-then-seal shape,
// using HKDF in place of its HMAC-based derivation.
type Sealer struct {
	masterKey []byte
}

// NewSealer builds a Sealer over a 32-byte master key.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != 32 {
		return nil, apperrors.NewCryptoError("keychain.new_sealer", fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey)))
	}
	return &Sealer{masterKey: masterKey}, nil
}

func (s *Sealer) deriveKey(cacheKey string) ([]byte, error) {
	reader := hkdf.New(sha256.New, s.masterKey, nil, []byte(cacheKey))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, apperrors.NewCryptoError("keychain.derive_key", err)
	}
	return key, nil
}

func (s *Sealer) gcm(cacheKey string) (cipher.AEAD, error) {
	key, err := s.deriveKey(cacheKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperrors.NewCryptoError("keychain.new_cipher", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts data (marshaled to JSON) under a key derived from cacheKey.
func (s *Sealer) Seal(cacheKey string, data map[string]any) ([]byte, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.NewInternalError("marshal keychain data", err)
	}
	gcm, err := s.gcm(cacheKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperrors.NewCryptoError("keychain.read_nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal for the same cacheKey.
func (s *Sealer) Open(cacheKey string, blob []byte) (map[string]any, error) {
	gcm, err := s.gcm(cacheKey)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, apperrors.NewCryptoError("keychain.open", fmt.Errorf("ciphertext too short"))
	}
	nonce, body := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, apperrors.NewCryptoError("keychain.open", err)
	}
	var data map[string]any
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, apperrors.NewInternalError("unmarshal keychain data", err)
	}
	return data, nil
}
