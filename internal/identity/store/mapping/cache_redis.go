package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roster_mapping_cache_lookups_total",
	Help: "Mapping cache lookups by result (hit, miss, error)",
}, []string{"result"})

const (
	cacheKeyPrefix  = "roster:mapping:"
	defaultCacheTTL = 10 * time.Minute
)

// Store is the mapping store surface the cache wraps.
type Store interface {
	Find(ctx context.Context, key models.MappingKey) (*models.SourceMapping, error)
	FindBySystem(ctx context.Context, system models.SourceSystem, sourceIDs []string) (map[string]id.AthleteID, error)
	Save(ctx context.Context, m *models.SourceMapping) (*models.SourceMapping, error)
	ListByAthlete(ctx context.Context, athleteID id.AthleteID) ([]*models.SourceMapping, error)
	Repoint(ctx context.Context, from, to id.AthleteID) (int, error)
}

// CachedStore is a read-through Redis cache in front of a mapping store.
// Only the athlete a key resolves to is cached. Writes go to the wrapped
// store; Repoint and Invalidate drop the affected keys. Redis failures are
// logged and the wrapped store answers instead.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *CachedStore) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedStore) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCachedStore(next Store, client *redis.Client, opts ...CacheOption) *CachedStore {
	c := &CachedStore{
		next:   next,
		client: client,
		ttl:    defaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// CacheKey is the Redis key holding the athlete for a mapping key.
func CacheKey(key models.MappingKey) string {
	return cacheKeyPrefix + string(key.SourceSystem) + ":" + key.SourceAthleteID
}

func (c *CachedStore) Find(ctx context.Context, key models.MappingKey) (*models.SourceMapping, error) {
	val, err := c.client.Get(ctx, CacheKey(key)).Result()
	switch {
	case err == nil:
		if athleteID, perr := uuid.Parse(val); perr == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return &models.SourceMapping{
				SourceSystem:    key.SourceSystem,
				SourceAthleteID: key.SourceAthleteID,
				AthleteID:       id.AthleteID(athleteID),
			}, nil
		}
		cacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		cacheLookups.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "mapping cache read failed", "key", CacheKey(key), "error", err)
	}

	m, err := c.next.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	c.store(ctx, map[string]string{CacheKey(key): m.AthleteID.String()})
	return m, nil
}

func (c *CachedStore) FindBySystem(ctx context.Context, system models.SourceSystem, sourceIDs []string) (map[string]id.AthleteID, error) {
	out := make(map[string]id.AthleteID, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(sourceIDs))
	for i, sourceID := range sourceIDs {
		keys[i] = CacheKey(models.MappingKey{SourceSystem: system, SourceAthleteID: sourceID})
	}

	missing := sourceIDs
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		cacheLookups.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "mapping cache multi-read failed", "system", system, "error", err)
	} else {
		missing = missing[:0:0]
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, sourceIDs[i])
				continue
			}
			athleteID, perr := uuid.Parse(s)
			if perr != nil {
				missing = append(missing, sourceIDs[i])
				continue
			}
			out[sourceIDs[i]] = id.AthleteID(athleteID)
		}
		cacheLookups.WithLabelValues("hit").Add(float64(len(out)))
		cacheLookups.WithLabelValues("miss").Add(float64(len(missing)))
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.next.FindBySystem(ctx, system, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]string, len(found))
	for sourceID, athleteID := range found {
		out[sourceID] = athleteID
		fill[CacheKey(models.MappingKey{SourceSystem: system, SourceAthleteID: sourceID})] = athleteID.String()
	}
	c.store(ctx, fill)
	return out, nil
}

// Save writes through to the wrapped store without touching the cache; the
// next lookup fills it from the committed row.
func (c *CachedStore) Save(ctx context.Context, m *models.SourceMapping) (*models.SourceMapping, error) {
	return c.next.Save(ctx, m)
}

func (c *CachedStore) ListByAthlete(ctx context.Context, athleteID id.AthleteID) ([]*models.SourceMapping, error) {
	return c.next.ListByAthlete(ctx, athleteID)
}

// Repoint moves mappings in the wrapped store and drops their cached entries.
func (c *CachedStore) Repoint(ctx context.Context, from, to id.AthleteID) (int, error) {
	moved, err := c.next.ListByAthlete(ctx, from)
	if err != nil {
		return 0, err
	}
	n, err := c.next.Repoint(ctx, from, to)
	if err != nil {
		return 0, err
	}
	keys := make([]models.MappingKey, len(moved))
	for i, m := range moved {
		keys[i] = m.Key()
	}
	if err := c.Invalidate(ctx, keys...); err != nil {
		c.logger.WarnContext(ctx, "mapping cache invalidation failed", "athlete_id", from, "error", err)
	}
	return n, nil
}

// Invalidate drops cached entries for keys.
func (c *CachedStore) Invalidate(ctx context.Context, keys ...models.MappingKey) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = CacheKey(k)
	}
	if err := c.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("invalidate mapping cache: %w", err)
	}
	return nil
}

func (c *CachedStore) store(ctx context.Context, entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for key, val := range entries {
		pipe.Set(ctx, key, val, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "mapping cache write failed", "entries", len(entries), "error", err)
	}
}
