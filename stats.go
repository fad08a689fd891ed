package minired

import "sync/atomic"

// Stats is a snapshot of server counters.
//
// For Prometheus integration, expose the connection fields as gauges derived
// from Accepted-Closed and the rest as counters.
type Stats struct {
	Accepted uint64 // connections accepted
	Closed   uint64 // connections closed (any reason)

	Gets   uint64 // GET commands executed
	Hits   uint64 // GETs that found the key
	Misses uint64 // GETs that did not
	Sets   uint64 // SET commands executed
	Dels   uint64 // DEL commands executed

	ProtocolErrors uint64 // requests answered with an -ERR line
	Oversized      uint64 // connections dropped for an unterminated request
	ArenaFull      uint64 // accepts dropped because the arena was exhausted
}

// statsCollector updates the counters; the server updates its own stats.
type statsCollector struct {
	stats Stats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (c *statsCollector) recordAccept() {
	atomic.AddUint64(&c.stats.Accepted, 1)
}

func (c *statsCollector) recordClose() {
	atomic.AddUint64(&c.stats.Closed, 1)
}

func (c *statsCollector) recordGet(hit bool) {
	atomic.AddUint64(&c.stats.Gets, 1)
	if hit {
		atomic.AddUint64(&c.stats.Hits, 1)
	} else {
		atomic.AddUint64(&c.stats.Misses, 1)
	}
}

func (c *statsCollector) recordSet() {
	atomic.AddUint64(&c.stats.Sets, 1)
}

func (c *statsCollector) recordDel() {
	atomic.AddUint64(&c.stats.Dels, 1)
}

func (c *statsCollector) recordProtocolError() {
	atomic.AddUint64(&c.stats.ProtocolErrors, 1)
}

func (c *statsCollector) recordOversized() {
	atomic.AddUint64(&c.stats.Oversized, 1)
}

func (c *statsCollector) recordArenaFull() {
	atomic.AddUint64(&c.stats.ArenaFull, 1)
}

func (c *statsCollector) snapshot() Stats {
	return Stats{
		Accepted:       atomic.LoadUint64(&c.stats.Accepted),
		Closed:         atomic.LoadUint64(&c.stats.Closed),
		Gets:           atomic.LoadUint64(&c.stats.Gets),
		Hits:           atomic.LoadUint64(&c.stats.Hits),
		Misses:         atomic.LoadUint64(&c.stats.Misses),
		Sets:           atomic.LoadUint64(&c.stats.Sets),
		Dels:           atomic.LoadUint64(&c.stats.Dels),
		ProtocolErrors: atomic.LoadUint64(&c.stats.ProtocolErrors),
		Oversized:      atomic.LoadUint64(&c.stats.Oversized),
		ArenaFull:      atomic.LoadUint64(&c.stats.ArenaFull),
	}
}
