// Package keychain implements the scoped, encrypted, expiring token
// cache (§4.11 Keychain store). Each entry is identified by a
// composite cache key and sealed under a key derived per cache key
// from the process-wide master key, the same derive-then-seal shape
// the teacher's envelope crypto uses for per-subject keys.
package keychain

import (
	"strconv"
	"time"
)

// Scope is the keychain entry's sharing scope.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeShared Scope = "shared"
	ScopeGlobal Scope = "global"
)

// Status is the outcome of a Get.
type Status string

const (
	StatusFound    Status = "found"
	StatusExpired  Status = "expired"
	StatusNotFound Status = "not_found"
)

// Entry is one keychain row.
type Entry struct {
	CacheKey     string
	KeychainName string
	CatalogID    int64
	Scope        Scope
	ExecutionID  int64
	Ciphertext   []byte
	ExpiresAt    *time.Time
	AutoRenew    bool
	RenewConfig  map[string]any
	AccessCount  int64
	AccessedAt   *time.Time
	CreatedAt    time.Time
}

// CacheKey computes the composite cache key per §3: scope_suffix is
// execution_id for local, shared:execution_id for shared, and the
// literal "global" for global.
func CacheKey(name string, catalogID int64, scope Scope, executionID int64) string {
	suffix := scopeSuffix(scope, executionID)
	return name + ":" + strconv.FormatInt(catalogID, 10) + ":" + suffix
}

func scopeSuffix(scope Scope, executionID int64) string {
	switch scope {
	case ScopeShared:
		return "shared:" + strconv.FormatInt(executionID, 10)
	case ScopeGlobal:
		return "global"
	default:
		return strconv.FormatInt(executionID, 10)
	}
}

// Result is the response shape for Get.
type Result struct {
	Status      Status
	Data        map[string]any
	ExpiresAt   *time.Time
	AutoRenew   bool
	AccessCount int64
}
