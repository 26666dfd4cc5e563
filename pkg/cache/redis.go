package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jgirmay/livemesh/pkg/models"
)

const rosterKeyPrefix = "livemesh:roster:"

// setIfCurrent stores the roster only while the generation is the one the
// caller read. Both keys share a hash tag so the script runs on one slot.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisRoster shares the roster cache across server instances.
type RedisRoster struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses url and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func NewRedisRoster(client *redis.Client, ttl time.Duration) *RedisRoster {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisRoster{client: client, ttl: ttl}
}

// Ensure interface compliance at compile time
var _ Roster = (*RedisRoster)(nil)

func rosterKey(eventID string) string {
	return rosterKeyPrefix + "{" + eventID + "}"
}

func generationKey(eventID string) string {
	return rosterKey(eventID) + ":gen"
}

func (r *RedisRoster) Get(ctx context.Context, eventID string) ([]models.EventPresence, bool, error) {
	res, err := r.client.Get(ctx, rosterKey(eventID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rows []models.EventPresence
	if err := json.Unmarshal(res, &rows); err != nil {
		return nil, false, fmt.Errorf("redis: decode roster: %w", err)
	}
	return rows, true, nil
}

func (r *RedisRoster) Generation(ctx context.Context, eventID string) (uint64, error) {
	gen, err := r.client.Get(ctx, generationKey(eventID)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (r *RedisRoster) Set(ctx context.Context, eventID string, gen uint64, rows []models.EventPresence) error {
	if rows == nil {
		rows = []models.EventPresence{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	keys := []string{generationKey(eventID), rosterKey(eventID)}
	return setIfCurrent.Run(ctx, r.client, keys, strconv.FormatUint(gen, 10), b, r.ttl.Milliseconds()).Err()
}

func (r *RedisRoster) Invalidate(ctx context.Context, eventID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(eventID))
		pipe.Del(ctx, rosterKey(eventID))
		return nil
	})
	return err
}

func (r *RedisRoster) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
