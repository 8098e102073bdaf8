package cache

import (
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/jellydator/ttlcache/v3"
)

// LastKnown holds the newest estimate per source, forgetting them after a TTL.
type LastKnown struct {
	c *ttlcache.Cache[fix.Source, fix.Estimate]
}

// NewLastKnown uses params.CacheLastKnownTTL when ttl is 0.
func NewLastKnown(ttl time.Duration) *LastKnown {
	if ttl == 0 {
		ttl = params.CacheLastKnownTTL
	}
	return &LastKnown{
		c: ttlcache.New[fix.Source, fix.Estimate](
			ttlcache.WithTTL[fix.Source, fix.Estimate](ttl),
			ttlcache.WithDisableTouchOnHit[fix.Source, fix.Estimate]()),
	}
}

// Set keeps e unless a newer estimate from the same source is already cached.
func (l *LastKnown) Set(e fix.Estimate) {
	if item := l.c.Get(e.Source); item != nil && item.Value().T > e.T {
		return
	}
	l.c.Set(e.Source, e, ttlcache.DefaultTTL)
}

func (l *LastKnown) Get(source fix.Source) (fix.Estimate, bool) {
	item := l.c.Get(source)
	if item == nil {
		return fix.Estimate{}, false
	}
	return item.Value(), true
}

// All returns the cached estimates keyed by source name.
func (l *LastKnown) All() map[string]fix.Estimate {
	out := map[string]fix.Estimate{}
	for src, item := range l.c.Items() {
		if item.IsExpired() {
			continue
		}
		out[src.String()] = item.Value()
	}
	return out
}

func (l *LastKnown) Len() int {
	return l.c.Len()
}
