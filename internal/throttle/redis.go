package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// tryVisitScript checks and records a visit in one server-side step.
// KEYS[1] visitor key, ARGV[1] now (ms), ARGV[2] cooldown (ms).
// Returns {allowed, previous_visit_ms}.
var tryVisitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if last > 0 and now - last < cooldown then
	return {0, last}
end
redis.call('SET', KEYS[1], ARGV[1])
return {1, last}
`)

// RedisStore keeps one string per visitor holding the last visit in epoch
// milliseconds. Keys never expire.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "faucet:visitor"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + ":" + k.Category + ":" + k.Origin
}

func (s *RedisStore) TryVisit(ctx context.Context, key Key, now time.Time, cooldown time.Duration) (Decision, error) {
	res, err := tryVisitScript.Run(ctx, s.rdb, []string{s.key(key)}, now.UnixMilli(), cooldown.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis try-visit: unexpected reply %v", res)
	}

	d := Decision{Allowed: res[0] == 1}
	if res[1] > 0 {
		d.LastVisit = time.UnixMilli(res[1])
	}
	return d, nil
}
