package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hyperlocal/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const (
	recentIncidentsKey  = "incidents:recent"
	recentGenerationKey = "incidents:recent:gen"
)

// setIfGeneration stores the list only while the generation still matches
// the one the caller read before loading it from the store.
var setIfGeneration = goredis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RecentIncidentCache holds the last computed recent-incidents list.
// A miss is reported as (nil, false, nil). Every Invalidate bumps a
// generation counter so a list loaded before a write is never stored after it.
type RecentIncidentCache struct {
	client *goredis.Client
	key    string
	genKey string
	ttl    time.Duration
}

func NewRecentIncidentCache(r *Redis, ttl time.Duration) *RecentIncidentCache {
	return &RecentIncidentCache{
		client: r.Client,
		key:    recentIncidentsKey,
		genKey: recentGenerationKey,
		ttl:    ttl,
	}
}

func (c *RecentIncidentCache) GetRecent(ctx context.Context) ([]domain.Incident, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var incidents []domain.Incident
	if err := json.Unmarshal(data, &incidents); err != nil {
		return nil, false, err
	}

	return incidents, true, nil
}

// Generation must be read before loading the list that is later passed to SetRecent.
func (c *RecentIncidentCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetRecent reports false when an Invalidate happened since gen was read.
func (c *RecentIncidentCache) SetRecent(ctx context.Context, gen int64, incidents []domain.Incident) (bool, error) {
	b, err := json.Marshal(incidents)
	if err != nil {
		return false, err
	}

	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.genKey, c.key},
		gen, b, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *RecentIncidentCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	return err
}
