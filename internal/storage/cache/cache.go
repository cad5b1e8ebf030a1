package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/pkg/cmap"
)

// Defaults.
const (
	DefaultCapacity      = 50
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Config configures a Cache.
type Config struct {
	// Capacity is the maximum number of sessions held.
	Capacity int

	// TTL is the maximum age of an entry, measured from its last Put.
	TTL time.Duration

	// SweepInterval is the period of the background expiry sweep.
	SweepInterval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:      DefaultCapacity,
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

type entry struct {
	session  *domain.Session
	cachedAt int64 // UnixNano
	seq      uint64

	lastAccessed atomic.Int64 // UnixNano
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Size        int
	Capacity    int
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// Utilization returns Size/Capacity in [0, 1].
func (s Stats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Size) / float64(s.Capacity)
}

// Cache is a TTL + LRU bounded session cache. Safe for concurrent use.
type Cache struct {
	cfg   Config
	items *cmap.Map[string, *entry]

	// Serializes capacity enforcement so concurrent Puts do not both
	// evict for the same overflow.
	evictMu sync.Mutex
	seq     atomic.Uint64

	// epoch advances on every Put, Invalidate and Clear.
	epoch atomic.Uint64

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a cache. Zero config fields take their defaults.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache{
		cfg:    cfg,
		items:  cmap.New[string, *entry](),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (c *Cache) expired(e *entry, now int64) bool {
	return now-e.cachedAt >= int64(c.cfg.TTL)
}

// Get returns a copy of the cached session, or nil on a miss.
// An expired entry is removed and reported as a miss.
func (c *Cache) Get(id string) *domain.Session {
	e, ok := c.items.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil
	}

	now := c.cfg.Now().UnixNano()
	if c.expired(e, now) {
		if c.items.DeleteIf(id, func(v *entry) bool { return v == e }) {
			c.expirations.Add(1)
		}
		c.misses.Add(1)
		return nil
	}

	e.lastAccessed.Store(now)
	c.hits.Add(1)
	return e.session.Clone()
}

// Peek returns a copy of a live cached session without counting a hit or
// refreshing its access time.
func (c *Cache) Peek(id string) *domain.Session {
	e, ok := c.items.Get(id)
	if !ok || c.expired(e, c.cfg.Now().UnixNano()) {
		return nil
	}
	return e.session.Clone()
}

// Put inserts or replaces the session, resetting its age. The returned
// Undo restores the previous state of this key.
func (c *Cache) Put(s *domain.Session) *Undo {
	now := c.cfg.Now().UnixNano()
	e := &entry{
		session:  s.Clone(),
		cachedAt: now,
		seq:      c.seq.Add(1),
	}
	e.lastAccessed.Store(now)

	c.epoch.Add(1)
	prev, _ := c.items.Swap(s.ID, e)
	if c.items.Count() > c.cfg.Capacity {
		c.enforceCapacity(s.ID)
	}
	return &Undo{cache: c, id: s.ID, prev: prev, next: e}
}

// Epoch returns the current write epoch. Take it before reading the
// session from the store and pass it to Fill.
func (c *Cache) Epoch() uint64 {
	return c.epoch.Load()
}

// Fill caches s only if nothing was written or invalidated since epoch and
// no live entry holds the key. It reports whether s was stored. A session
// read from the store before a concurrent save or delete finished is
// dropped rather than cached.
func (c *Cache) Fill(s *domain.Session, epoch uint64) bool {
	now := c.cfg.Now().UnixNano()
	e := &entry{
		session:  s.Clone(),
		cachedAt: now,
		seq:      c.seq.Add(1),
	}
	e.lastAccessed.Store(now)

	stored := c.items.StoreIf(s.ID, e, func(cur *entry, exists bool) bool {
		if c.epoch.Load() != epoch {
			return false
		}
		return !exists || c.expired(cur, now)
	})
	if stored && c.items.Count() > c.cfg.Capacity {
		c.enforceCapacity(s.ID)
	}
	return stored
}

// enforceCapacity evicts least recently accessed entries other than keep
// until the cache fits.
func (c *Cache) enforceCapacity(keep string) {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	for c.items.Count() > c.cfg.Capacity {
		var (
			victimID string
			victim   *entry
		)
		c.items.Range(func(id string, e *entry) bool {
			if id == keep {
				return true
			}
			if victim == nil || older(e, victim) {
				victimID, victim = id, e
			}
			return true
		})
		if victim == nil {
			return
		}
		if c.items.DeleteIf(victimID, func(v *entry) bool { return v == victim }) {
			c.evictions.Add(1)
			c.cfg.Logger.Debug("cache entry evicted", "session_id", victimID)
		}
	}
}

func older(a, b *entry) bool {
	la, lb := a.lastAccessed.Load(), b.lastAccessed.Load()
	if la != lb {
		return la < lb
	}
	return a.seq < b.seq
}

// Invalidate removes id and reports whether it was cached.
func (c *Cache) Invalidate(id string) bool {
	c.epoch.Add(1)
	_, ok := c.items.Pop(id)
	return ok
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	return c.items.Count()
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int {
	return c.cfg.Capacity
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.cfg.TTL
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:        c.items.Count(),
		Capacity:    c.cfg.Capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.epoch.Add(1)
	c.items.Clear()
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.cfg.Now().UnixNano()
	n := c.items.RemoveWhere(func(_ string, e *entry) bool {
		return c.expired(e, now)
	})
	c.expirations.Add(uint64(n))
	return n
}

// Start launches the background sweeper. Calling Start again is a no-op.
func (c *Cache) Start() {
	c.startOnce.Do(func() {
		go c.sweepLoop()
	})
}

func (c *Cache) sweepLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.cfg.Logger.Debug("cache sweep", "expired", n, "size", c.Len())
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop halts the sweeper and waits for it to exit. Safe to call more than
// once, and before Start.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		started := true
		c.startOnce.Do(func() { started = false })
		if started {
			<-c.doneCh
		}
	})
}

// Undo reverts a single Put.
type Undo struct {
	cache *Cache
	id    string
	prev  *entry
	next  *entry
}

// Rollback restores the entry that the Put replaced, or removes the key if
// there was none. It does nothing if the key has been written, evicted or
// invalidated since the Put.
func (u *Undo) Rollback() {
	if u == nil {
		return
	}
	isNext := func(v *entry) bool { return v == u.next }
	if u.prev == nil {
		u.cache.items.DeleteIf(u.id, isNext)
		return
	}
	u.cache.items.ReplaceIf(u.id, isNext, u.prev)
}
