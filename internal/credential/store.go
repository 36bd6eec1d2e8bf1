package credential

import "context"

// Store persists credential rows with their payload already encrypted
// (the Service layer is responsible for encrypt/decrypt; the Store
// only ever sees ciphertext).
type Store interface {
	// Upsert inserts a credential or replaces an existing one with the
	// same name, updating updated_at. ciphertext is the encrypted data
	// blob; it replaces any prior ciphertext entirely.
	Upsert(ctx context.Context, name, credType string, ciphertext []byte, meta map[string]any, tags []string, description string) (Credential, error)

	GetByID(ctx context.Context, id int64) (*Credential, []byte, error)
	GetByName(ctx context.Context, name string) (*Credential, []byte, error)

	// List returns metadata (no ciphertext) for credentials matching
	// credType (optional) and a case-insensitive substring query over
	// name and description (optional).
	List(ctx context.Context, credType, query string) ([]Credential, error)

	DeleteByID(ctx context.Context, id int64) error
	DeleteByName(ctx context.Context, name string) error
}
