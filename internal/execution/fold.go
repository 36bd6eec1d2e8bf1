package execution

import (
	"context"

	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/state"
)

// ProjectionFolder adapts an event.Store into the EventFolder this
// package's Service needs, folding the full stream on every call —
// the projection is always a cache, never a source of truth (§4.6).
type ProjectionFolder struct {
	Events event.Store
}

// Project reads executionID's full event stream and folds it.
func (f ProjectionFolder) Project(ctx context.Context, executionID int64) (*state.Projection, error) {
	events, err := f.Events.Read(ctx, executionID, 0, 0)
	if err != nil {
		return nil, err
	}
	return state.Fold(events)
}
