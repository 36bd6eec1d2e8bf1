// Package catalog implements the versioned playbook catalog (§4.4): an
// immutable, append-only store of playbook documents addressable by
// either a 64-bit id or a (path, version) pair.
package catalog

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/noetl/noetl/internal/dsl"
)

// Entry is one immutable catalog document (§3 Catalog entry).
type Entry struct {
	ID          int64
	Kind        string
	Path        string
	Version     int
	Content     string
	Layout      *dsl.Playbook
	Meta        map[string]any
	CreatedAt   time.Time
}

// decodeContent returns the raw DSL text for content, base64-decoding
// it first when it looks base64-encoded rather than plain YAML. The
// auto-detection heuristic mirrors the original register handler:
// a document starting with "apiVersion" or "api_version" is treated
// as plain text; anything else is tried as base64 first.
func decodeContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "apiVersion") || strings.HasPrefix(trimmed, "api_version") {
		return content
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return content
	}
	return string(decoded)
}
