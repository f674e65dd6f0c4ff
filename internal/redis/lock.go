package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("center lock not acquired")
	ErrLockLost        = errors.New("center lock lost")
)

// Locker guards session generation runs per center. Acquisition never waits.
// The lock is held for as long as fn runs; fn's context is cancelled with
// ErrLockLost as its cause if the lock is taken away mid-run.
type Locker interface {
	WithCenterLock(ctx context.Context, centerID int64, fn func(ctx context.Context) error) error
}

type redisCenterLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCenterLocker creates a locker that uses a per center Redis key
func NewRedisCenterLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisCenterLocker{
		client: client,
		ttl:    ttl,
	}
}

func centerLockKey(centerID int64) string {
	return fmt.Sprintf("lock:generate:center:%d", centerID)
}

func (l *redisCenterLocker) WithCenterLock(ctx context.Context, centerID int64, fn func(ctx context.Context) error) error {
	key := centerLockKey(centerID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire center lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(runCtx, key, token, done, cancel)
	}()

	defer func() {
		close(done)
		wg.Wait()
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	return fn(runCtx)
}

// keepAlive pushes the key's expiry forward every third of the TTL so a long
// run keeps its lock. The TTL only bounds how long a crashed holder blocks.
func (l *redisCenterLocker) keepAlive(ctx context.Context, key, token string, done <-chan struct{}, cancel context.CancelCauseFunc) {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				cancel(fmt.Errorf("%w: renew: %v", ErrLockLost, err))
				return
			}
			if n == 0 {
				cancel(ErrLockLost)
				return
			}
		}
	}
}

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`)

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisCenterLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release center lock: %w", err)
	}
	return nil
}

// LocalLocker is the in-process Locker used when no Redis is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[int64]bool)}
}

func (l *LocalLocker) WithCenterLock(ctx context.Context, centerID int64, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[centerID] {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.held[centerID] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, centerID)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
