package registry

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beamnet/drivesim-server/internal/hostapi"
	"github.com/beamnet/drivesim-server/internal/logger"
)

// cacheTTL bounds how long a cached player-name lookup is trusted before
// falling back to the authoritative in-memory Registry again.
const cacheTTL = 30 * time.Second

// Cache wraps a Registry with an optional Redis read-through layer for
// GetPlayerName lookups, grounded on the teacher's internal/cache.Cache
// (connection-pooled client, Enabled flag short-circuiting when
// unconfigured) — repurposed here from HTTP session/quota caching to
// script-facing registry reads, which are the only registry calls hot
// enough across a large player count to benefit.
type Cache struct {
	registry *Registry
	client   *redis.Client
}

// NewCache wraps registry with a Redis client at addr. An empty addr
// disables caching: every call passes straight through to registry, which
// matches the teacher's Config.Enabled short-circuit.
func NewCache(registry *Registry, addr string) *Cache {
	c := &Cache{registry: registry}
	if addr == "" {
		return c
	}
	c.client = redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     25,
		MinIdleConns: 5,
	})
	return c
}

func (c *Cache) PlayerCount() int                   { return c.registry.PlayerCount() }
func (c *Cache) IsConnected(id int) bool            { return c.registry.IsConnected(id) }
func (c *Cache) IsGuest(id int) (bool, bool)         { return c.registry.IsGuest(id) }
func (c *Cache) PlayerIDs() []int                    { return c.registry.PlayerIDs() }
func (c *Cache) Vehicles(id int) (map[int]string, bool) { return c.registry.Vehicles(id) }
func (c *Cache) DiscordID(id int) string             { return c.registry.DiscordID(id) }
func (c *Cache) HWID(id int) string                  { return c.registry.HWID(id) }
func (c *Cache) RemoveVehicle(pid, vid int) bool     { return c.registry.RemoveVehicle(pid, vid) }
func (c *Cache) IsSynced(id int) bool                { return c.registry.IsSynced(id) }
func (c *Cache) DropPlayer(id int, reason string) bool {
	ok := c.registry.DropPlayer(id, reason)
	if ok && c.client != nil {
		c.client.Del(context.Background(), cacheKey(id))
	}
	return ok
}

// PlayerName reads through Redis when configured: a cache hit skips the
// registry's read-lock entirely, a miss populates the cache from the
// registry with cacheTTL. Redis errors (including a cold/unreachable
// instance) fall back to the registry silently — the cache is strictly an
// accelerator, never a dependency GetPlayerName can fail on.
func (c *Cache) PlayerName(id int) (string, bool) {
	if c.client == nil {
		return c.registry.PlayerName(id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if val, err := c.client.Get(ctx, cacheKey(id)).Result(); err == nil {
		var entry cacheEntry
		if json.Unmarshal([]byte(val), &entry) == nil {
			return entry.Name, true
		}
	}

	name, ok := c.registry.PlayerName(id)
	if ok {
		if data, err := json.Marshal(cacheEntry{Name: name}); err == nil {
			if err := c.client.Set(ctx, cacheKey(id), data, cacheTTL).Err(); err != nil {
				logger.Scheduler().Debug().Err(err).Msg("registry cache write skipped")
			}
		}
	}
	return name, ok
}

type cacheEntry struct {
	Name string `json:"name"`
}

func cacheKey(id int) string {
	return "drivesim:player:" + strconv.Itoa(id)
}

var _ hostapi.ClientRegistry = (*Cache)(nil)
