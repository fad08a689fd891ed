//go:build linux

// Package minired implements a concurrent in-memory key-value server: a
// single-threaded edge-triggered reactor accepts and frames requests,
// hands them to a fixed worker pool through a lock-free FIFO, and writes
// responses back through the same event loop.
package minired

import (
	"errors"
	"sync"

	"github.com/go-kit/log/level"

	"github.com/pior/minired/arena"
	"github.com/pior/minired/store"
	"github.com/pior/minired/workqueue"
)

// ErrServerClosed is returned by Run after Shutdown completes.
var ErrServerClosed = errors.New("minired: server closed")

// Server owns the store, the connection arena, the work queue, the worker
// pool, and the reactor. Create with NewServer, drive with Run, stop with
// Shutdown.
type Server struct {
	cfg     Config
	store   *store.Store
	arena   *arena.Arena[conn]
	queue   *workqueue.Queue[*workItem]
	pool    *workerPool
	reactor *reactor
	stats   *statsCollector

	stopOnce sync.Once
	done     chan struct{}
}

// NewServer binds the listen socket and builds the event loop. Startup
// failures (bad address, bind, epoll creation) surface here.
func NewServer(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	st := store.New()
	a := arena.New[conn](cfg.MaxSlabs, cfg.ConnsPerSlab)
	q := workqueue.New[*workItem]()
	stats := newStatsCollector()

	pool := newWorkerPool(cfg.Workers, q, st, a, cfg.Logger, stats)
	r, err := newReactor(cfg, a, pool, stats)
	if err != nil {
		return nil, err
	}
	pool.reactor = r

	return &Server{
		cfg:     cfg,
		store:   st,
		arena:   a,
		queue:   q,
		pool:    pool,
		reactor: r,
		stats:   stats,
		done:    make(chan struct{}),
	}, nil
}

// Addr reports the bound listen address ("0.0.0.0:6379"). Useful when the
// configuration requested port 0.
func (s *Server) Addr() string {
	return s.reactor.addr()
}

// Run starts the worker pool and blocks in the event loop. It returns
// ErrServerClosed after Shutdown, or the fatal loop error. The teardown
// order follows the lifecycle contract: stop accepting, drain the workers,
// then release the remaining connections.
func (s *Server) Run() error {
	level.Info(s.cfg.Logger).Log("msg", "server started", "addr", s.Addr(), "workers", s.cfg.Workers)

	s.pool.start()
	loopErr := s.reactor.loop()

	s.reactor.closeListener()
	s.pool.shutdown()
	s.reactor.closeConns()
	s.reactor.closeEpoll()

	level.Info(s.cfg.Logger).Log("msg", "server stopped")
	close(s.done)

	if loopErr != nil {
		return loopErr
	}
	return ErrServerClosed
}

// Shutdown asks the event loop to exit and waits for Run to finish its
// teardown. Safe to call from any goroutine, more than once.
func (s *Server) Shutdown() {
	s.stopOnce.Do(s.reactor.stop)
	<-s.done
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

// Store exposes the underlying key-value store, primarily for tests and
// embedding.
func (s *Server) Store() *store.Store {
	return s.store
}
