package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDIsUniqueAndWellFormed(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestSnapshotBindsPriorStepOutput(t *testing.T) {
	vars := map[string]any{"k": "v"}
	snap := Snapshot(vars, "start", map[string]any{"code": float64(200)})
	assert.Equal(t, "v", snap["k"])
	assert.Equal(t, map[string]any{"code": float64(200)}, snap["start"])
}

func TestSnapshotWithoutPriorStep(t *testing.T) {
	snap := Snapshot(map[string]any{"k": "v"}, "", nil)
	assert.Equal(t, map[string]any{"k": "v"}, snap)
}
