package credential

import (
	"context"

	"github.com/noetl/noetl/internal/apperrors"
)

// Cipher is the subset of *crypto.Encryptor the service needs,
// narrowed so tests can substitute a fake.
type Cipher interface {
	EncryptJSON(v any) ([]byte, error)
	DecryptJSON(blob []byte, v any) error
}

// Service implements the credential store operations (§4.11):
// upsert/get/list/delete, encrypting and decrypting payloads at the
// service boundary so the Store never sees plaintext.
type Service struct {
	store  Store
	cipher Cipher
}

func New(store Store, cipher Cipher) *Service {
	return &Service{store: store, cipher: cipher}
}

// Upsert replaces the entire ciphertext for name (creating the row if
// absent) and updates updated_at.
func (s *Service) Upsert(ctx context.Context, name, credType string, data map[string]any, meta map[string]any, tags []string, description string) (Credential, error) {
	if name == "" {
		return Credential{}, apperrors.RequiredError("name")
	}
	if credType == "" {
		return Credential{}, apperrors.RequiredError("type")
	}

	ciphertext, err := s.cipher.EncryptJSON(data)
	if err != nil {
		return Credential{}, err
	}
	return s.store.Upsert(ctx, name, credType, ciphertext, meta, tags, description)
}

// Get looks up a credential by numeric id or name. When includeData is
// false, the returned Credential never carries decrypted data.
func (s *Service) Get(ctx context.Context, idOrName string, includeData bool) (Credential, error) {
	cred, ciphertext, err := s.lookup(ctx, idOrName)
	if err != nil {
		return Credential{}, err
	}
	if !includeData {
		return cred.Redacted(), nil
	}

	var data map[string]any
	if err := s.cipher.DecryptJSON(ciphertext, &data); err != nil {
		return Credential{}, err
	}
	cred.Data = data
	return cred, nil
}

// List returns metadata-only results filtered by credType/query.
func (s *Service) List(ctx context.Context, credType, query string) ([]Credential, error) {
	return s.store.List(ctx, credType, query)
}

// Resolve looks up each named credential and returns its decrypted
// data keyed by name, satisfying orchestrator.SecretResolver
// structurally: a step's tool config names the credentials it needs by
// name, and the orchestrator snapshots exactly this map into the
// command it issues (§4.7, §4.11).
func (s *Service) Resolve(ctx context.Context, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		cred, err := s.Get(ctx, name, true)
		if err != nil {
			return nil, err
		}
		out[name] = cred.Data
	}
	return out, nil
}

// Delete removes a credential looked up by numeric id or name.
func (s *Service) Delete(ctx context.Context, idOrName string) error {
	if id, ok := isNumericID(idOrName); ok {
		return s.store.DeleteByID(ctx, id)
	}
	return s.store.DeleteByName(ctx, idOrName)
}

func (s *Service) lookup(ctx context.Context, idOrName string) (Credential, []byte, error) {
	if id, ok := isNumericID(idOrName); ok {
		cred, ciphertext, err := s.store.GetByID(ctx, id)
		if err != nil {
			return Credential{}, nil, err
		}
		return *cred, ciphertext, nil
	}
	cred, ciphertext, err := s.store.GetByName(ctx, idOrName)
	if err != nil {
		return Credential{}, nil, err
	}
	return *cred, ciphertext, nil
}
