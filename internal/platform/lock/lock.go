// Package lock serializes scheduled jobs. The queue and draw pipelines must
// not overlap with themselves; deployments with a single process can rely on
// the local locker, multi-process deployments configure the Redis locker.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Locker grants best-effort exclusive ownership of a named job.
type Locker interface {
	// TryAcquire returns ok=false without blocking when the lock is held
	// elsewhere. The returned release function is a no-op when ok=false.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// Local is a process-local locker for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) TryAcquire(_ context.Context, name string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return func() {}, false, nil
	}
	l.held[name] = true
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
	}
	return release, true, nil
}

// Redis is an advisory locker backed by SET NX with a TTL. The TTL bounds
// lock leakage when a holder dies without releasing.
type Redis struct {
	client *goredis.Client
}

func NewRedis(client *goredis.Client) *Redis {
	return &Redis{client: client}
}

// releaseScript deletes the lock only when the caller still owns it, so a
// slow job cannot release a lock that has expired and been re-acquired.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (r *Redis) TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := "notto:lock:" + name
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		_ = releaseScript.Run(context.Background(), r.client, []string{key}, token).Err()
	}
	return release, true, nil
}
