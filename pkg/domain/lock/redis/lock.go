package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opst/ripen/pkg/domain"
	"github.com/opst/ripen/pkg/domain/lock"
	goredis "github.com/redis/go-redis/v9"
)

// deletes the key only when it is ours.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extends the ttl only when the key is ours.
var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const DefaultTTL = 30 * time.Second

type redisLock struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ lock.Interface = &redisLock{}

// New lock backed by redis keys (SET NX PX).
//
// Held locks are kept alive until released, by extending ttl periodically.
// If the holder dies, the lock expires after ttl.
func New(client goredis.UniversalClient, prefix string, ttl time.Duration) lock.Interface {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisLock{client: client, prefix: prefix, ttl: ttl}
}

func (l *redisLock) key(name string) string {
	return l.prefix + name
}

func (l *redisLock) Acquire(ctx context.Context, name string) (lock.Release, error) {
	key := l.key(name)
	token := uuid.NewString()

	err := l.client.SetArgs(ctx, key, token, goredis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLocked, name)
	}
	if err != nil {
		return nil, err
	}

	keepalive, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-keepalive.Done():
				return
			case <-ticker.C:
				refreshScript.Run(keepalive, l.client, []string{key}, token, l.ttl.Milliseconds())
			}
		}
	}()

	once := sync.Once{}
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stop()
			<-done
			err = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return err
	}, nil
}
