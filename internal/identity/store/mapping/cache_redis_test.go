package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

func newCachedStore(t *testing.T) (*CachedStore, *InMemory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := NewInMemory()
	return NewCachedStore(backing, client, WithCacheTTL(time.Minute)), backing, mr
}

func TestCachedStoreFind(t *testing.T) {
	ctx := context.Background()
	key := models.MappingKey{SourceSystem: models.SourceArmAction, SourceAthleteID: "CY"}

	t.Run("fills the cache on miss", func(t *testing.T) {
		cache, backing, mr := newCachedStore(t)
		athleteID := id.NewAthleteID()
		_, err := backing.Save(ctx, &models.SourceMapping{SourceSystem: key.SourceSystem, SourceAthleteID: key.SourceAthleteID, AthleteID: athleteID})
		require.NoError(t, err)

		m, err := cache.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, athleteID, m.AthleteID)

		cached, err := mr.Get(CacheKey(key))
		require.NoError(t, err)
		assert.Equal(t, athleteID.String(), cached)
		assert.Equal(t, time.Minute, mr.TTL(CacheKey(key)))
	})

	t.Run("serves hits without the backing store", func(t *testing.T) {
		cache, _, mr := newCachedStore(t)
		athleteID := id.NewAthleteID()
		require.NoError(t, mr.Set(CacheKey(key), athleteID.String()))

		m, err := cache.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, athleteID, m.AthleteID)
	})

	t.Run("does not cache absent mappings", func(t *testing.T) {
		cache, _, mr := newCachedStore(t)
		_, err := cache.Find(ctx, key)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.False(t, mr.Exists(CacheKey(key)))
	})

	t.Run("falls back to the backing store when redis is down", func(t *testing.T) {
		cache, backing, mr := newCachedStore(t)
		athleteID := id.NewAthleteID()
		_, err := backing.Save(ctx, &models.SourceMapping{SourceSystem: key.SourceSystem, SourceAthleteID: key.SourceAthleteID, AthleteID: athleteID})
		require.NoError(t, err)
		mr.Close()

		m, err := cache.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, athleteID, m.AthleteID)
	})
}

func TestCachedStoreFindBySystem(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newCachedStore(t)

	cachedID := id.NewAthleteID()
	storedID := id.NewAthleteID()
	require.NoError(t, mr.Set(CacheKey(models.MappingKey{SourceSystem: models.SourceHitting, SourceAthleteID: "a"}), cachedID.String()))
	_, err := backing.Save(ctx, &models.SourceMapping{SourceSystem: models.SourceHitting, SourceAthleteID: "b", AthleteID: storedID})
	require.NoError(t, err)

	found, err := cache.FindBySystem(ctx, models.SourceHitting, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]id.AthleteID{"a": cachedID, "b": storedID}, found)
	assert.True(t, mr.Exists(CacheKey(models.MappingKey{SourceSystem: models.SourceHitting, SourceAthleteID: "b"})))
	assert.False(t, mr.Exists(CacheKey(models.MappingKey{SourceSystem: models.SourceHitting, SourceAthleteID: "c"})))
}

func TestCachedStoreRepointInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, backing, mr := newCachedStore(t)

	retired := id.NewAthleteID()
	survivor := id.NewAthleteID()
	key := models.MappingKey{SourceSystem: models.SourcePitching, SourceAthleteID: "ryan weiss tg"}
	_, err := backing.Save(ctx, &models.SourceMapping{SourceSystem: key.SourceSystem, SourceAthleteID: key.SourceAthleteID, AthleteID: retired})
	require.NoError(t, err)

	_, err = cache.Find(ctx, key)
	require.NoError(t, err)
	require.True(t, mr.Exists(CacheKey(key)))

	n, err := cache.Repoint(ctx, retired, survivor)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(CacheKey(key)))

	m, err := cache.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, survivor, m.AthleteID)
}
