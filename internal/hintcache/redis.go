// Package hintcache keeps a Redis copy of each screen's last heartbeat time
// for listing views.
package hintcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ad-monitor/internal/monitor"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "admon:screen:last_seen:"

// touchScript stores ARGV[1] (unix millis) unless the key already holds a
// later value, so a delayed heartbeat cannot move the hint backwards.
var touchScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// RedisHints implements monitor.StatusHints on a go-redis client.
type RedisHints struct {
	client *redis.Client
	ttl    time.Duration
}

var _ monitor.StatusHints = (*RedisHints)(nil)

// NewRedisHints returns hints expiring ttl after the last touch. A
// non-positive ttl defaults to 24h.
func NewRedisHints(client *redis.Client, ttl time.Duration) *RedisHints {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisHints{client: client, ttl: ttl}
}

// Touch records at as the screen's last heartbeat if it is not older than
// the stored one.
func (h *RedisHints) Touch(ctx context.Context, screenID monitor.ScreenID, at time.Time) error {
	err := touchScript.Run(ctx, h.client, []string{key(screenID)}, at.UnixMilli(), h.ttl.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("touch screen %d: %w", screenID, err)
	}
	return nil
}

// LastSeen returns the cached last heartbeat for each screen that has one.
func (h *RedisHints) LastSeen(ctx context.Context, screenIDs []monitor.ScreenID) (map[monitor.ScreenID]time.Time, error) {
	out := make(map[monitor.ScreenID]time.Time, len(screenIDs))
	if len(screenIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(screenIDs))
	for i, id := range screenIDs {
		keys[i] = key(id)
	}
	vals, err := h.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget last seen: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out[screenIDs[i]] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}

// Ping checks connectivity.
func (h *RedisHints) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

func key(id monitor.ScreenID) string {
	return keyPrefix + strconv.FormatInt(int64(id), 10)
}
