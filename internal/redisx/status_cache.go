package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

// putIfNewer stores {rev, body} unless the cached rev is already higher.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rev')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'rev', ARGV[1], 'body', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RequestCache keeps the latest persisted view of each blood request so
// status polling does not hit Postgres. It is never a source of truth.
type RequestCache struct {
	rdb redis.Cmdable
}

func NewRequestCache(rdb redis.Cmdable) *RequestCache {
	return &RequestCache{rdb: rdb}
}

// Put caches r unless a later revision of the same request is already
// cached, so late writers cannot roll the entry back.
func (c *RequestCache) Put(ctx context.Context, r bloodbank.BloodRequest) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyRequestStatus, r.ID)
	return putIfNewer.Run(ctx, c.rdb, []string{key}, r.Revision(), b, TTLStatusCache.Milliseconds()).Err()
}

// Get returns ok=false on a miss.
func (c *RequestCache) Get(ctx context.Context, id string) (bloodbank.BloodRequest, bool, error) {
	s, err := c.rdb.HGet(ctx, fmt.Sprintf(KeyRequestStatus, id), "body").Result()
	if errors.Is(err, redis.Nil) {
		return bloodbank.BloodRequest{}, false, nil
	}
	if err != nil {
		return bloodbank.BloodRequest{}, false, err
	}
	var r bloodbank.BloodRequest
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return bloodbank.BloodRequest{}, false, err
	}
	return r, true, nil
}
