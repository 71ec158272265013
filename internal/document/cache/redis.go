package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// setIfGeneration writes KEYS[2] only while KEYS[1] (the clinic generation,
// absent meaning 0) equals ARGV[1]. ARGV[3] is the TTL in milliseconds.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// RedisCache stores each clinic's list as JSON under "<prefix><clinicID>"
// with a TTL, keeps its generation under "<prefix><clinicID>:gen" and
// publishes invalidations on InvalidationChannel.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
}

// NewRedisCache creates a Redis-backed list cache. Prefix may be empty.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "dentalhub:documents:"
	}
	return &RedisCache{client: client, prefix: prefix, channel: InvalidationChannel, ttl: ttl}
}

func (r *RedisCache) key(clinicID string) string {
	return r.prefix + clinicID
}

func (r *RedisCache) genKey(clinicID string) string {
	return r.prefix + clinicID + ":gen"
}

func (r *RedisCache) Generation(ctx context.Context, clinicID string) (uint64, error) {
	s, err := r.client.Get(ctx, r.genKey(clinicID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

func (r *RedisCache) Get(ctx context.Context, clinicID string) ([]*document.Document, bool, error) {
	b, err := r.client.Get(ctx, r.key(clinicID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var docs []*document.Document
	if err := json.Unmarshal(b, &docs); err != nil {
		// a corrupt entry is a miss; drop it so the next Set repairs it
		_ = r.client.Del(ctx, r.key(clinicID)).Err()
		return nil, false, nil
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	return docs, true, nil
}

func (r *RedisCache) Set(ctx context.Context, clinicID string, gen uint64, docs []*document.Document) error {
	if docs == nil {
		docs = []*document.Document{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	keys := []string{r.genKey(clinicID), r.key(clinicID)}
	return setIfGeneration.Run(ctx, r.client, keys, strconv.FormatUint(gen, 10), b, r.ttl.Milliseconds()).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, inv document.Invalidation) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey(inv.ClinicID))
		pipe.Del(ctx, r.key(inv.ClinicID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop cached list: %w", err)
	}
	b, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe blocks reading the invalidation channel until ctx is done.
// Undecodable messages are logged and skipped.
func (r *RedisCache) Subscribe(ctx context.Context, fn func(document.Invalidation)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	// wait for the subscription to be confirmed before consuming
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv document.Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				logger.Warnf("invalidation: bad payload on %s: %v", r.channel, err)
				continue
			}
			fn(inv)
		}
	}
}
