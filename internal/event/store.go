package event

import (
	"context"
	"encoding/json"
)

// Store is the abstract append-only log contract (§4.5). Event ids are
// strictly increasing; two concurrent writers that succeed receive
// distinct ids; a reader using the same id range observes exactly the
// same sequence on every read.
type Store interface {
	// Append writes a new event for executionID and returns its id.
	Append(ctx context.Context, executionID int64, eventType Type, payload any) (int64, error)
	// Read returns events for executionID with id > fromID, in id
	// order, up to limit (0 means unbounded).
	Read(ctx context.Context, executionID int64, fromID int64, limit int) ([]Event, error)
	// Last returns the most recent event for executionID, if any.
	Last(ctx context.Context, executionID int64) (*Event, error)
	// GetByID looks up a single event by its globally unique id,
	// independent of which execution it belongs to. Used by the
	// worker's fetch-command-by-event_id request (§4.8).
	GetByID(ctx context.Context, eventID int64) (*Event, error)
	// Pending returns up to limit command.issued events that have no
	// matching command.claimed event yet, oldest first. It backs the
	// orchestrator's poll endpoint, the fallback a worker uses when it
	// has no bus subscription (§4.8).
	Pending(ctx context.Context, limit int) ([]Event, error)
}

// MarshalPayload is a helper shared by Store implementations: it
// accepts either a ready json.RawMessage or an arbitrary struct to
// marshal, so Append callers can pass typed payload structs directly.
func MarshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
