package client

import "sync/atomic"

// Stats contains client operation counters. All fields are safe for
// concurrent access.
type Stats struct {
	Gets uint64 // Get operations
	Sets uint64 // Set operations
	Dels uint64 // Del operations

	CacheHits   uint64 // Gets that found the key
	CacheMisses uint64 // Gets that did not

	Errors               uint64 // transport, breaker, and server errors
	ConnectionsDestroyed uint64 // connections discarded after an error
}

// HitRate returns the cache hit rate between 0 and 1, or 0 before any Get.
func (s *Stats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

type statsCollector struct {
	stats Stats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (c *statsCollector) recordGet(hit bool) {
	atomic.AddUint64(&c.stats.Gets, 1)
	if hit {
		atomic.AddUint64(&c.stats.CacheHits, 1)
	} else {
		atomic.AddUint64(&c.stats.CacheMisses, 1)
	}
}

func (c *statsCollector) recordSet() {
	atomic.AddUint64(&c.stats.Sets, 1)
}

func (c *statsCollector) recordDel() {
	atomic.AddUint64(&c.stats.Dels, 1)
}

func (c *statsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *statsCollector) recordConnectionDestroyed() {
	atomic.AddUint64(&c.stats.ConnectionsDestroyed, 1)
}

func (c *statsCollector) snapshot() Stats {
	return Stats{
		Gets:                 atomic.LoadUint64(&c.stats.Gets),
		Sets:                 atomic.LoadUint64(&c.stats.Sets),
		Dels:                 atomic.LoadUint64(&c.stats.Dels),
		CacheHits:            atomic.LoadUint64(&c.stats.CacheHits),
		CacheMisses:          atomic.LoadUint64(&c.stats.CacheMisses),
		Errors:               atomic.LoadUint64(&c.stats.Errors),
		ConnectionsDestroyed: atomic.LoadUint64(&c.stats.ConnectionsDestroyed),
	}
}
