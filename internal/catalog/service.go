package catalog

import (
	"context"
	"strings"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/dsl"
)

// Service implements the catalog operations the REST surface and CLI
// drive: register, list, and resource lookup.
type Service struct {
	store Store
}

// New builds a Service over store.
func New(store Store) *Service {
	return &Service{store: store}
}

// RegisterResult is the response shape for a successful registration
// (§6 Catalog REST).
type RegisterResult struct {
	Status    string
	Message   string
	Path      string
	Version   int
	CatalogID int64
	Kind      string
}

// Register decodes content (auto-detecting base64), validates it as a
// playbook document, computes the next dense version for its path,
// and inserts an immutable catalog entry.
func (s *Service) Register(ctx context.Context, content string, resourceType string) (RegisterResult, error) {
	text := decodeContent(content)

	kind, err := dsl.ExtractKind([]byte(text))
	if err != nil {
		return RegisterResult{}, err
	}
	if resourceType != "" && !strings.EqualFold(resourceType, kind) {
		return RegisterResult{}, apperrors.NewValidationError("resource_type", "does not match document kind "+kind)
	}

	name, path, _, err := dsl.ExtractMetadata([]byte(text))
	if err != nil {
		return RegisterResult{}, err
	}
	if path == "" {
		path = name
	}
	if path == "" {
		return RegisterResult{}, apperrors.RequiredError("metadata.path")
	}

	if _, err := dsl.Parse([]byte(text)); err != nil {
		return RegisterResult{}, err
	}

	version, err := s.store.NextVersion(ctx, path)
	if err != nil {
		return RegisterResult{}, err
	}

	id, err := s.store.Insert(ctx, Entry{
		Kind:    kind,
		Path:    path,
		Version: version,
		Content: text,
	})
	if err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{
		Status:    "registered",
		Message:   "playbook registered",
		Path:      path,
		Version:   version,
		CatalogID: id,
		Kind:      kind,
	}, nil
}

// List returns the latest entry per path, optionally filtered by kind.
func (s *Service) List(ctx context.Context, kind string) ([]Entry, error) {
	return s.store.List(ctx, kind)
}

// Resource looks up a single entry. id takes priority over path when
// both are supplied. version may be a positive integer or "latest"
// (the empty string is treated as "latest").
func (s *Service) Resource(ctx context.Context, id int64, path string, version string) (*Entry, error) {
	if id != 0 {
		return s.store.GetByID(ctx, id)
	}
	if path == "" {
		return nil, apperrors.RequiredError("path")
	}
	if version == "" || strings.EqualFold(version, "latest") {
		return s.store.Latest(ctx, path)
	}

	n, err := parsePositiveInt(version)
	if err != nil {
		return nil, apperrors.NewValidationError("version", "must be a positive integer or \"latest\"")
	}
	return s.store.GetByPathVersion(ctx, path, n)
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, apperrors.RequiredError("version")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, apperrors.NewValidationError("version", "not an integer")
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, apperrors.NewValidationError("version", "must be positive")
	}
	return n, nil
}
