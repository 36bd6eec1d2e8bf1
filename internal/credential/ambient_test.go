package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWithAmbientFallbackUsesStoreWhenIDGiven(t *testing.T) {
	store := newMockStore()
	svc := New(store, fakeCipher{})
	_, err := svc.Upsert(context.Background(), "db", "token", map[string]any{"x": 1}, nil, nil, "")
	require.NoError(t, err)

	got, err := svc.GetWithAmbientFallback(context.Background(), "db", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "db", got.Name)
	assert.Nil(t, got.Data)
}

func TestGetWithAmbientFallbackReturnsNotFoundWithoutResolver(t *testing.T) {
	store := newMockStore()
	svc := New(store, fakeCipher{})

	_, err := svc.GetWithAmbientFallback(context.Background(), "", false, nil)
	require.Error(t, err)
}
