package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists worker entries as TTL'd hash keys plus a pool
// set for membership listing, the natural Redis shape for an
// expire-on-its-own presence registry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a RedisStore from a connection URL
// (redis://host:port/db); prefix namespaces keys (defaults to
// "noetl:registry").
func NewRedisStore(redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperrors.NewValidationError("runtime_registry_dsn", err.Error())
	}
	if prefix == "" {
		prefix = "noetl:registry"
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: prefix}, nil
}

func (s *RedisStore) workerKey(poolName, workerID string) string {
	return fmt.Sprintf("%s:worker:%s:%s", s.prefix, poolName, workerID)
}

func (s *RedisStore) poolKey(poolName string) string {
	return fmt.Sprintf("%s:pool:%s", s.prefix, poolName)
}

func (s *RedisStore) poolsKey() string {
	return s.prefix + ":pools"
}

func (s *RedisStore) Register(ctx context.Context, w Worker, ttl time.Duration) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return apperrors.NewInternalError("marshal worker entry", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.workerKey(w.PoolName, w.WorkerID), payload, ttl)
	pipe.SAdd(ctx, s.poolKey(w.PoolName), w.WorkerID)
	pipe.Expire(ctx, s.poolKey(w.PoolName), ttl*2)
	pipe.SAdd(ctx, s.poolsKey(), w.PoolName)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewTransientError("registry.register", err)
	}
	return nil
}

func (s *RedisStore) Heartbeat(ctx context.Context, poolName, workerID string, ttl time.Duration) error {
	key := s.workerKey(poolName, workerID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return apperrors.NewNotFoundError("worker", workerID)
		}
		return apperrors.NewTransientError("registry.heartbeat.get", err)
	}
	var w Worker
	if err := json.Unmarshal(raw, &w); err != nil {
		return apperrors.NewInternalError("unmarshal worker entry", err)
	}
	w.LastHeartbeat = nowUTC()
	payload, err := json.Marshal(w)
	if err != nil {
		return apperrors.NewInternalError("marshal worker entry", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return apperrors.NewTransientError("registry.heartbeat.set", err)
	}
	return nil
}

func (s *RedisStore) Deregister(ctx context.Context, poolName, workerID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.workerKey(poolName, workerID))
	pipe.SRem(ctx, s.poolKey(poolName), workerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewTransientError("registry.deregister", err)
	}
	return nil
}

func (s *RedisStore) ListPools(ctx context.Context) ([]Pool, error) {
	names, err := s.client.SMembers(ctx, s.poolsKey()).Result()
	if err != nil {
		return nil, apperrors.NewTransientError("registry.list_pools", err)
	}
	out := make([]Pool, 0, len(names))
	for _, name := range names {
		workers, err := s.ListWorkers(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Pool{Name: name, WorkerCount: len(workers)})
	}
	return out, nil
}

func (s *RedisStore) ListWorkers(ctx context.Context, poolName string) ([]Worker, error) {
	ids, err := s.client.SMembers(ctx, s.poolKey(poolName)).Result()
	if err != nil {
		return nil, apperrors.NewTransientError("registry.list_workers", err)
	}
	out := make([]Worker, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.workerKey(poolName, id)).Bytes()
		if err == redis.Nil {
			// TTL expired: the worker is offline; drop the stale set member.
			s.client.SRem(ctx, s.poolKey(poolName), id)
			continue
		}
		if err != nil {
			return nil, apperrors.NewTransientError("registry.list_workers.get", err)
		}
		var w Worker
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, apperrors.NewInternalError("unmarshal worker entry", err)
		}
		out = append(out, w)
	}
	return out, nil
}
