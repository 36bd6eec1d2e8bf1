package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	workers map[string]Worker // poolName/workerID -> Worker
}

func newMemStore() *memStore { return &memStore{workers: map[string]Worker{}} }

func key(pool, id string) string { return pool + "/" + id }

func (m *memStore) Register(_ context.Context, w Worker, _ time.Duration) error {
	m.workers[key(w.PoolName, w.WorkerID)] = w
	return nil
}

func (m *memStore) Heartbeat(_ context.Context, poolName, workerID string, _ time.Duration) error {
	w, ok := m.workers[key(poolName, workerID)]
	if !ok {
		return nil
	}
	w.LastHeartbeat = time.Now()
	m.workers[key(poolName, workerID)] = w
	return nil
}

func (m *memStore) Deregister(_ context.Context, poolName, workerID string) error {
	delete(m.workers, key(poolName, workerID))
	return nil
}

func (m *memStore) ListPools(context.Context) ([]Pool, error) {
	counts := map[string]int{}
	for _, w := range m.workers {
		counts[w.PoolName]++
	}
	var out []Pool
	for name, n := range counts {
		out = append(out, Pool{Name: name, WorkerCount: n})
	}
	return out, nil
}

func (m *memStore) ListWorkers(_ context.Context, poolName string) ([]Worker, error) {
	var out []Worker
	for _, w := range m.workers {
		if w.PoolName == poolName {
			out = append(out, w)
		}
	}
	return out, nil
}

func TestRegisterThenListWorkers(t *testing.T) {
	store := newMemStore()
	reg := New(store, time.Minute)

	require.NoError(t, reg.Register(context.Background(), "default", "w1", "host-a"))
	workers, err := reg.Workers(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "w1", workers[0].WorkerID)
	assert.Equal(t, "host-a", workers[0].Hostname)
}

func TestDeregisterRemovesWorker(t *testing.T) {
	store := newMemStore()
	reg := New(store, time.Minute)
	require.NoError(t, reg.Register(context.Background(), "default", "w1", "host-a"))
	require.NoError(t, reg.Deregister(context.Background(), "default", "w1"))

	workers, err := reg.Workers(context.Background(), "default")
	require.NoError(t, err)
	assert.Empty(t, workers)
}

func TestPoolsSummarizesWorkerCount(t *testing.T) {
	store := newMemStore()
	reg := New(store, time.Minute)
	require.NoError(t, reg.Register(context.Background(), "a", "w1", "h1"))
	require.NoError(t, reg.Register(context.Background(), "a", "w2", "h2"))
	require.NoError(t, reg.Register(context.Background(), "b", "w3", "h3"))

	pools, err := reg.Pools(context.Background())
	require.NoError(t, err)
	counts := map[string]int{}
	for _, p := range pools {
		counts[p.Name] = p.WorkerCount
	}
	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 1, counts["b"])
}

func TestDefaultOfflineAfterAppliedWhenZero(t *testing.T) {
	reg := New(newMemStore(), 0)
	assert.Equal(t, DefaultOfflineAfter, reg.offlineAfter)
}
