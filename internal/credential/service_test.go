package credential

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCipher round-trips through plain JSON, standing in for
// *crypto.Encryptor so these tests don't depend on key material.
type fakeCipher struct{}

func (fakeCipher) EncryptJSON(v any) ([]byte, error) { return json.Marshal(v) }
func (fakeCipher) DecryptJSON(blob []byte, v any) error {
	return json.Unmarshal(blob, v)
}

type mockStore struct {
	byID   map[int64]Credential
	cipher map[int64][]byte
	byName map[string]int64
	nextID int64
}

func newMockStore() *mockStore {
	return &mockStore{byID: map[int64]Credential{}, cipher: map[int64][]byte{}, byName: map[string]int64{}}
}

func (m *mockStore) Upsert(_ context.Context, name, credType string, ciphertext []byte, meta map[string]any, tags []string, description string) (Credential, error) {
	id, exists := m.byName[name]
	if !exists {
		m.nextID++
		id = m.nextID
		m.byName[name] = id
	}
	c := Credential{ID: id, Name: name, Type: credType, Meta: meta, Tags: tags, Description: description, UpdatedAt: time.Now().UTC()}
	m.byID[id] = c
	m.cipher[id] = ciphertext
	return c, nil
}

func (m *mockStore) GetByID(_ context.Context, id int64) (*Credential, []byte, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, nil, assert.AnError
	}
	return &c, m.cipher[id], nil
}

func (m *mockStore) GetByName(_ context.Context, name string) (*Credential, []byte, error) {
	id, ok := m.byName[name]
	if !ok {
		return nil, nil, assert.AnError
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockStore) List(_ context.Context, credType, query string) ([]Credential, error) {
	var out []Credential
	for _, c := range m.byID {
		out = append(out, c.Redacted())
	}
	return out, nil
}

func (m *mockStore) DeleteByID(_ context.Context, id int64) error {
	if _, ok := m.byID[id]; !ok {
		return assert.AnError
	}
	delete(m.byID, id)
	return nil
}

func (m *mockStore) DeleteByName(_ context.Context, name string) error {
	id, ok := m.byName[name]
	if !ok {
		return assert.AnError
	}
	return m.DeleteByID(context.Background(), id)
}

func TestUpsertEncryptsDataBeforeStoring(t *testing.T) {
	store := newMockStore()
	svc := New(store, fakeCipher{})

	_, err := svc.Upsert(context.Background(), "db1", "postgres", map[string]any{"password": "secret"}, nil, nil, "")
	require.NoError(t, err)

	assert.NotEmpty(t, store.cipher[1])
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(store.cipher[1], &decoded))
	assert.Equal(t, "secret", decoded["password"])
}

func TestGetWithoutIncludeDataNeverReturnsPlaintext(t *testing.T) {
	store := newMockStore()
	svc := New(store, fakeCipher{})
	_, err := svc.Upsert(context.Background(), "db1", "postgres", map[string]any{"password": "secret"}, nil, nil, "")
	require.NoError(t, err)

	cred, err := svc.Get(context.Background(), "db1", false)
	require.NoError(t, err)
	assert.Nil(t, cred.Data)
}

func TestGetWithIncludeDataDecrypts(t *testing.T) {
	store := newMockStore()
	svc := New(store, fakeCipher{})
	_, err := svc.Upsert(context.Background(), "db1", "postgres", map[string]any{"password": "secret"}, nil, nil, "")
	require.NoError(t, err)

	cred, err := svc.Get(context.Background(), "1", true)
	require.NoError(t, err)
	assert.Equal(t, "secret", cred.Data["password"])
}

func TestDeleteLooksUpByNumericIDFirst(t *testing.T) {
	store := newMockStore()
	svc := New(store, fakeCipher{})
	_, err := svc.Upsert(context.Background(), "db1", "postgres", map[string]any{}, nil, nil, "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "1"))
	_, _, err = store.GetByID(context.Background(), 1)
	assert.Error(t, err)
}
