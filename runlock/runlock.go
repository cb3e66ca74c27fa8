// Package runlock keeps two snippetsync processes from syncing the same
// store at the same time.
package runlock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/reqsercom/snippetsync/logger"
)

// Locker hands out an exclusive run lease. ok is false when another holder
// has it; release must be called once the run is over.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Nop grants every request.
type Nop struct{}

func (Nop) Acquire(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease stored under a single Redis key.
type Redis struct {
	rdb *goredis.Client
	key string
	ttl time.Duration
	log *logger.Logger
}

// NewRedis connects to addr and checks the connection.
func NewRedis(addr, key string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisClient(rdb, key, ttl, log), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *goredis.Client, key string, ttl time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		rdb: rdb,
		key: key,
		ttl: ttl,
		log: log.With("component", "runlock"),
	}
}

func (r *Redis) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring %s: %w", r.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.rdb, []string{r.key}, token).Err(); err != nil {
			r.log.Warn("releasing run lease failed", "key", r.key, "error", err)
		}
	}
	return release, true, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
