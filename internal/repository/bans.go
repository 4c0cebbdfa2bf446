package repository

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const BansKey = "faucet:banned"

// BansRepository is the set of banned origins.
type BansRepository interface {
	IsBanned(ctx context.Context, origin string) (bool, error)
	Add(ctx context.Context, origins ...string) (int64, error)
	Remove(ctx context.Context, origins ...string) (int64, error)
	List(ctx context.Context) ([]string, error)
}

type redisBans struct {
	rdb *redis.Client
	key string
}

func NewBansRepository(rdb *redis.Client) BansRepository {
	return &redisBans{rdb: rdb, key: BansKey}
}

func normalizeOrigins(origins []string) []any {
	out := make([]any, 0, len(origins))
	for _, o := range origins {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (r *redisBans) IsBanned(ctx context.Context, origin string) (bool, error) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false, nil
	}
	return r.rdb.SIsMember(ctx, r.key, origin).Result()
}

func (r *redisBans) Add(ctx context.Context, origins ...string) (int64, error) {
	members := normalizeOrigins(origins)
	if len(members) == 0 {
		return 0, nil
	}
	return r.rdb.SAdd(ctx, r.key, members...).Result()
}

func (r *redisBans) Remove(ctx context.Context, origins ...string) (int64, error) {
	members := normalizeOrigins(origins)
	if len(members) == 0 {
		return 0, nil
	}
	return r.rdb.SRem(ctx, r.key, members...).Result()
}

func (r *redisBans) List(ctx context.Context) ([]string, error) {
	return r.rdb.SMembers(ctx, r.key).Result()
}
