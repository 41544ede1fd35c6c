package core

import (
	"testing"
	"time"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestCoordinateKey(t *testing.T) {
	p := orb.Point{153.02512345678, -27.46981234}

	assert.Equal(t, "-27.469812,153.025123", CoordinateKey(6)(p))
	assert.Equal(t, "-27.47,153.03", CoordinateKey(2)(p))
	assert.Equal(t, "-27,153", CoordinateKey(0)(p))
}

func TestResultCache_GetSet(t *testing.T) {
	cache := NewResultCache(10, time.Minute, nil)
	p := orb.Point{153.0251, -27.4698}

	_, ok := cache.Get(p)
	assert.False(t, ok)

	cache.Set(p, model.WalkabilityResult{Score: 42})

	got, ok := cache.Get(p)
	assert.True(t, ok)
	assert.Equal(t, 42, got.Score)

	// Та же точка после квантования
	got, ok = cache.Get(orb.Point{153.02510004, -27.46980004})
	assert.True(t, ok)
	assert.Equal(t, 42, got.Score)

	cache.Set(p, model.WalkabilityResult{Score: 7})
	got, _ = cache.Get(p)
	assert.Equal(t, 7, got.Score)
	assert.Equal(t, 1, cache.Len())

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}

func TestResultCache_Evicts(t *testing.T) {
	cache := NewResultCache(2, time.Minute, CoordinateKey(3))

	cache.Set(orb.Point{1, 1}, model.WalkabilityResult{Score: 1})
	cache.Set(orb.Point{2, 2}, model.WalkabilityResult{Score: 2})
	cache.Set(orb.Point{3, 3}, model.WalkabilityResult{Score: 3})

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get(orb.Point{1, 1})
	assert.False(t, ok)
	_, ok = cache.Get(orb.Point{3, 3})
	assert.True(t, ok)
}

func TestResultCache_Expires(t *testing.T) {
	cache := NewResultCache(10, 20*time.Millisecond, nil)
	p := orb.Point{1, 1}

	cache.Set(p, model.WalkabilityResult{Score: 1})
	assert.Eventually(t, func() bool {
		_, ok := cache.Get(p)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestResultCache_CustomKey(t *testing.T) {
	// Ключ по сетке 0.01 градуса: соседние точки делят запись
	grid := func(p orb.Point) string {
		return CoordinateKey(2)(p)
	}
	cache := NewResultCache(10, time.Minute, grid)

	cache.Set(orb.Point{153.021, -27.471}, model.WalkabilityResult{Score: 5})
	got, ok := cache.Get(orb.Point{153.024, -27.468})
	assert.True(t, ok)
	assert.Equal(t, 5, got.Score)
	assert.Equal(t, "-27.47,153.02", cache.Key(orb.Point{153.024, -27.468}))
}
