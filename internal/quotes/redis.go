package quotes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/0xReLogic/Furnace/internal/config"
)

// RedisStore keeps quotes as JSON entries of a Redis list.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to Redis and verifies it answers PING.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, key: cfg.Key}, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Quote, error) {
	raw, err := s.rdb.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read quotes: %w", err)
	}

	out := make([]Quote, 0, len(raw))
	for _, item := range raw {
		var q Quote
		if err := json.Unmarshal([]byte(item), &q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}

// seedScript fills the list only while it is empty. The check and the
// write run as one script, so concurrent starters cannot both seed and a
// failed write leaves nothing behind that would block a later attempt.
var seedScript = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) > 0 then
	return 0
end
redis.call('RPUSH', KEYS[1], unpack(ARGV))
return 1
`)

// Seed writes quotes when the list is empty and is a no-op otherwise.
func (s *RedisStore) Seed(ctx context.Context, quotes []Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	values := make([]interface{}, len(quotes))
	for i, q := range quotes {
		b, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode quote: %w", err)
		}
		values[i] = b
	}

	if err := seedScript.Run(ctx, s.rdb, []string{s.key}, values...).Err(); err != nil {
		return fmt.Errorf("write quotes: %w", err)
	}
	return nil
}

func (s *RedisStore) Close(context.Context) error {
	return s.rdb.Close()
}
