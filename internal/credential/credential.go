// Package credential implements the encrypted credential store
// (§4.11): named, typed secret records whose payload is AEAD
// ciphertext at rest.
package credential

import (
	"strconv"
	"strings"
	"time"
)

// Credential is one stored credential record. Data holds plaintext
// only in memory, after a successful decrypt; it is never the
// serialized representation of a row.
type Credential struct {
	ID          int64
	Name        string
	Type        string
	Data        map[string]any
	Meta        map[string]any
	Tags        []string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Redacted returns a copy with Data cleared, for responses where
// include_data=false.
func (c Credential) Redacted() Credential {
	c.Data = nil
	return c
}

// isNumericID reports whether ref looks like a numeric id rather than
// a name, per §4.11's "lookup by identifier first tries numeric id,
// then name".
func isNumericID(ref string) (int64, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
