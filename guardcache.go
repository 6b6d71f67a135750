package permit

import (
	"sync"
	"time"
)

// DefaultGuardCacheTTL bounds how long a final allow/deny boolean is reused.
const DefaultGuardCacheTTL = 5 * time.Minute

// DefaultGuardJanitorInterval is how often expired guard entries are purged.
const DefaultGuardJanitorInterval = time.Minute

type guardKey struct {
	UserID     string
	ProjectID  string
	Action     string
	ResourceID string
}

type guardEntry struct {
	Allowed  bool
	Result   *GuardResult
	CachedAt time.Time
	Expires  time.Time
}

// GuardCacheStats is a snapshot of the cache counters.
type GuardCacheStats struct {
	Hits        uint64        `json:"hits"`
	Misses      uint64        `json:"misses"`
	Entries     int           `json:"entries"`
	AvgCheck    time.Duration `json:"avg_check"`
	CheckSample uint64        `json:"check_sample"`
}

// GuardCache caches final guard decisions, including denials, under a short
// TTL. Hits bypass the permission service and all guard logic entirely, so a
// stale verdict can live for at most one TTL.
type GuardCache struct {
	mu      sync.RWMutex
	entries map[guardKey]*guardEntry
	ttl     time.Duration
	now     func() time.Time

	hits       uint64
	misses     uint64
	totalCheck time.Duration
	checks     uint64

	stopOnce sync.Once
	stop     chan struct{}
}

func NewGuardCache(ttl, janitorInterval time.Duration) *GuardCache {
	if ttl <= 0 {
		ttl = DefaultGuardCacheTTL
	}
	if janitorInterval <= 0 {
		janitorInterval = DefaultGuardJanitorInterval
	}
	c := &GuardCache{
		entries: make(map[guardKey]*guardEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.janitor(janitorInterval)
	return c
}

func (c *GuardCache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.purgeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *GuardCache) purgeExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.Expires) {
			delete(c.entries, k)
		}
	}
}

// Get returns the cached result for the key, counting a hit or miss.
func (c *GuardCache) Get(userID, projectID, action, resourceID string) (*GuardResult, bool) {
	key := guardKey{UserID: userID, ProjectID: projectID, Action: action, ResourceID: resourceID}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.Expires) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.Result, true
	}
	c.mu.Lock()
	c.misses++
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores a result and records the time the uncached check took, feeding
// the rolling latency average.
func (c *GuardCache) Set(userID, projectID, action, resourceID string, result *GuardResult, checkTime time.Duration) {
	key := guardKey{UserID: userID, ProjectID: projectID, Action: action, ResourceID: resourceID}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &guardEntry{
		Allowed:  result.Allowed,
		Result:   result,
		CachedAt: now,
		Expires:  now.Add(c.ttl),
	}
	if checkTime > 0 {
		c.totalCheck += checkTime
		c.checks++
	}
}

// Clear drops entries for a user, optionally narrowed to projects.
func (c *GuardCache) Clear(userID string, projectIDs ...string) {
	narrow := make(map[string]bool, len(projectIDs))
	for _, p := range projectIDs {
		narrow[p] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.UserID != userID {
			continue
		}
		if len(narrow) > 0 && !narrow[k.ProjectID] {
			continue
		}
		delete(c.entries, k)
	}
}

// ClearAll flushes everything, e.g. on a role-matrix redeploy.
func (c *GuardCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[guardKey]*guardEntry)
}

// Stats snapshots the counters.
func (c *GuardCache) Stats() GuardCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := GuardCacheStats{
		Hits:        c.hits,
		Misses:      c.misses,
		Entries:     len(c.entries),
		CheckSample: c.checks,
	}
	if c.checks > 0 {
		st.AvgCheck = c.totalCheck / time.Duration(c.checks)
	}
	return st
}

// Stop terminates the janitor. Safe to call more than once.
func (c *GuardCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
