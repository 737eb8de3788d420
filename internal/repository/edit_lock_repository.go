package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
)

const defaultKeyPrefix = "labsched:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// EditLockRepository guards a (lab, week) against concurrent reconciles.
// Without a Redis client it falls back to a lock table local to the process.
type EditLockRepository struct {
	client *redis.Client
	logger *zap.Logger
	prefix string

	mu    sync.Mutex
	local map[string]localLock
	now   func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

// NewEditLockRepository constructs an edit lock repository. client may be nil.
func NewEditLockRepository(client *redis.Client, logger *zap.Logger) *EditLockRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditLockRepository{
		client: client,
		logger: logger,
		prefix: defaultKeyPrefix,
		local:  make(map[string]localLock),
		now:    time.Now,
	}
}

// WithKeyPrefix namespaces lock keys, e.g. when several deployments share a Redis DB.
func (r *EditLockRepository) WithKeyPrefix(prefix string) *EditLockRepository {
	if prefix != "" {
		r.prefix = prefix
	}
	return r
}

// EditLockKey names the lock of one lab week under the default prefix.
func EditLockKey(labID int64, monday time.Time) string {
	return editLockKey(defaultKeyPrefix, labID, monday)
}

func editLockKey(prefix string, labID int64, monday time.Time) string {
	return fmt.Sprintf("%sedit:%d:%s", prefix, labID, monday.Format("2006-01-02"))
}

// Acquire locks the week of labID starting at monday and returns a release
// func. A lock that is already held yields ErrEditInFlight.
func (r *EditLockRepository) Acquire(ctx context.Context, labID int64, monday time.Time, ttl time.Duration) (func(), error) {
	return r.AcquireKey(ctx, editLockKey(r.prefix, labID, monday), ttl)
}

// AcquireKey locks an arbitrary key.
func (r *EditLockRepository) AcquireKey(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	if r.client == nil {
		return r.acquireLocal(key, token, ttl)
	}

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, appErrors.ErrEditInFlight
	}
	return func() {
		// the caller's context may already be cancelled once the edit settles
		if err := releaseScript.Run(context.Background(), r.client, []string{key}, token).Err(); err != nil {
			r.logger.Warn("release edit lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (r *EditLockRepository) acquireLocal(key, token string, ttl time.Duration) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.local[key]; ok && (held.expires.IsZero() || now.Before(held.expires)) {
		return nil, appErrors.ErrEditInFlight
	}
	lock := localLock{token: token}
	if ttl > 0 {
		lock.expires = now.Add(ttl)
	}
	r.local[key] = lock
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if held, ok := r.local[key]; ok && held.token == token {
			delete(r.local, key)
		}
	}, nil
}

// Close releases the underlying Redis connection if present.
func (r *EditLockRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
