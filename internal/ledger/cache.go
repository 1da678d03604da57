package ledger

import (
	"sync"
	"time"

	"github.com/signalsgame/orchestrator/internal/config"
)

// ttlCache is a generic in-memory cache with per-entry expiry. Redis is
// deliberately not used here (see DESIGN.md) — reads are already scoped
// to a single process and the values are tiny, so an in-memory map with
// a mutex mirrors the teacher's in-memory registries (GameManager's
// games/playerToGame maps) more closely than reaching for Redis again.
type ttlCache[K comparable, V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[K]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

func newTTLCache[K comparable, V any](ttl time.Duration) *ttlCache[K, V] {
	return &ttlCache[K, V]{ttl: ttl, m: make(map[K]cacheEntry[V])}
}

func (c *ttlCache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	var zero V
	if !ok || time.Now().After(e.expires) {
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[K, V]) set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cacheEntry[V]{value: value, expires: time.Now().Add(c.ttl)}
}

// setForever stores a value with no expiry, for immutable records
// (settled matches, resolved agent names).
func (c *ttlCache[K, V]) setForever(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cacheEntry[V]{value: value, expires: time.Now().Add(100 * 365 * 24 * time.Hour)}
}

func (c *ttlCache[K, V]) delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *ttlCache[K, V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[K]cacheEntry[V])
}

// cacheSet bundles the named caches the spec calls out individually by
// TTL and invalidation rule.
type cacheSet struct {
	agentStats   *ttlCache[string, AgentStats]
	choiceNonce  *ttlCache[string, uint64]
	registration *ttlCache[string, bool]
	leaderboard  *ttlCache[string, []LeaderboardEntry]
	matches      *ttlCache[uint64, MatchView] // settled matches only, unbounded TTL
	agentNames   *ttlCache[string, string]    // unbounded TTL
}

func newCacheSet(cfg *config.Config) *cacheSet {
	return &cacheSet{
		agentStats:   newTTLCache[string, AgentStats](time.Duration(cfg.StatsCacheTTLSeconds) * time.Second),
		choiceNonce:  newTTLCache[string, uint64](time.Duration(cfg.ChoiceNonceCacheTTLSeconds) * time.Second),
		registration: newTTLCache[string, bool](time.Duration(cfg.RegistrationCacheTTLSeconds) * time.Second),
		leaderboard:  newTTLCache[string, []LeaderboardEntry](time.Duration(cfg.LeaderboardCacheTTLSeconds) * time.Second),
		matches:      newTTLCache[uint64, MatchView](0),
		agentNames:   newTTLCache[string, string](0),
	}
}

// invalidateOnSettlement drops the caches the spec says go stale the
// moment any match settles.
func (c *cacheSet) invalidateOnSettlement() {
	c.agentStats.clear()
	c.leaderboard.clear()
}
