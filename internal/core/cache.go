package core

import (
	"fmt"
	"time"
	"walkscore_service/internal/domain/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/paulmach/orb"
)

// KeyFunc turns a scoring origin into a cache key.
type KeyFunc func(origin orb.Point) string

// CoordinateKey quantizes the origin to `precision` decimals, "lat,lon".
func CoordinateKey(precision int) KeyFunc {
	return func(origin orb.Point) string {
		return fmt.Sprintf("%.*f,%.*f", precision, origin.Lat(), precision, origin.Lon())
	}
}

// ResultCache keeps recent walkability results so the same area is not
// scored twice. Bounded by size, entries expire after ttl.
type ResultCache struct {
	lru *expirable.LRU[string, model.WalkabilityResult]
	key KeyFunc
}

func NewResultCache(size int, ttl time.Duration, key KeyFunc) *ResultCache {
	if key == nil {
		key = CoordinateKey(6)
	}
	return &ResultCache{
		lru: expirable.NewLRU[string, model.WalkabilityResult](size, nil, ttl),
		key: key,
	}
}

func (c *ResultCache) Key(origin orb.Point) string {
	return c.key(origin)
}

func (c *ResultCache) Get(origin orb.Point) (model.WalkabilityResult, bool) {
	return c.lru.Get(c.key(origin))
}

// Set overwrites whatever was cached for origin.
func (c *ResultCache) Set(origin orb.Point, result model.WalkabilityResult) {
	c.lru.Add(c.key(origin), result)
}

func (c *ResultCache) Len() int {
	return c.lru.Len()
}

func (c *ResultCache) Purge() {
	c.lru.Purge()
}
