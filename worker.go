//go:build linux

package minired

import (
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/pior/minired/arena"
	"github.com/pior/minired/protocol"
	"github.com/pior/minired/store"
	"github.com/pior/minired/workqueue"
)

// workItem is one framed request bound to its connection. Produced by the
// reactor, consumed by exactly one worker, recycled through a pool.
type workItem struct {
	conn   *conn
	handle arena.Handle
	req    []byte
	buf    [protocol.MaxRequestSize]byte
}

var workItemPool = sync.Pool{
	New: func() any { return new(workItem) },
}

// newWorkItem copies the framed request line (truncated to its bounded size)
// and captures the connection and its arena handle.
func newWorkItem(c *conn, line []byte) *workItem {
	item := workItemPool.Get().(*workItem)
	item.conn = c
	item.handle = c.handle
	n := copy(item.buf[:], line)
	item.req = item.buf[:n]
	return item
}

func releaseWorkItem(item *workItem) {
	item.conn = nil
	item.handle = arena.Handle{}
	item.req = nil
	workItemPool.Put(item)
}

// workerPool drains the work queue, executes commands against the store, and
// posts responses back through the reactor.
type workerPool struct {
	queue   *workqueue.Queue[*workItem]
	store   *store.Store
	arena   *arena.Arena[conn]
	reactor *reactor // set by the server after the reactor exists
	logger  log.Logger
	stats   *statsCollector

	workers  int
	wg       sync.WaitGroup
	stopping atomic.Bool
}

func newWorkerPool(workers int, q *workqueue.Queue[*workItem], st *store.Store, a *arena.Arena[conn], logger log.Logger, stats *statsCollector) *workerPool {
	return &workerPool{
		queue:   q,
		store:   st,
		arena:   a,
		logger:  logger,
		stats:   stats,
		workers: workers,
	}
}

func (p *workerPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// submit hands one work item to the pool. Never blocks.
func (p *workerPool) submit(item *workItem) {
	p.queue.Push(item)
}

// shutdown stops the pool: workers finish their current item but start no
// new one. Items still queued are dropped.
func (p *workerPool) shutdown() {
	p.stopping.Store(true)
	p.queue.Close()
	p.wg.Wait()
}

func (p *workerPool) run(id int) {
	defer p.wg.Done()
	logger := log.With(p.logger, "worker", id)
	level.Debug(logger).Log("msg", "worker started")

	for !p.stopping.Load() {
		item, ok := p.queue.PopWait()
		if !ok {
			break
		}
		p.process(item)
	}

	level.Debug(logger).Log("msg", "worker stopped")
}

func (p *workerPool) process(item *workItem) {
	var scratch [WriteBufferSize]byte
	resp := p.execute(item.req, scratch[:0])
	p.complete(item, resp)
	releaseWorkItem(item)
}

// execute runs one parsed command against the store and appends the
// formatted response to dst.
func (p *workerPool) execute(req, dst []byte) []byte {
	cmd, err := protocol.ParseCommand(req)
	switch err {
	case nil:
	case protocol.ErrBadFormat:
		p.stats.recordProtocolError()
		return append(dst, protocol.RespBadFrame...)
	default:
		p.stats.recordProtocolError()
		return append(dst, protocol.RespUnknown...)
	}

	switch cmd.Verb {
	case protocol.CmdGet:
		value, ok := p.store.Get(string(cmd.Key))
		p.stats.recordGet(ok)
		if !ok {
			return append(dst, protocol.RespNil...)
		}
		return protocol.AppendValue(dst, value)
	case protocol.CmdSet:
		p.store.Set(string(cmd.Key), cmd.Value)
		p.stats.recordSet()
		return append(dst, protocol.RespOK...)
	case protocol.CmdDel:
		p.store.Del(string(cmd.Key))
		p.stats.recordDel()
		return append(dst, protocol.RespOK...)
	default:
		p.stats.recordProtocolError()
		return append(dst, protocol.RespUnknown...)
	}
}

// complete installs the response in the connection's write buffer and arms
// write interest. If the reactor tore the connection down while the command
// was in flight, the worker drops the response and returns the slot, per the
// ownership handoff in remove.
func (p *workerPool) complete(item *workItem, resp []byte) {
	c := item.conn

	c.mu.Lock()
	if c.state != stateProcessing {
		c.mu.Unlock()
		_ = p.arena.Free(item.handle)
		return
	}

	n := copy(c.wbuf[:], resp)
	c.wtotal = n
	c.wpos = 0
	c.state = stateWriting
	fd := c.fd

	// Arm write interest while still holding the lock: remove also closes
	// the descriptor under this lock, so the modification cannot race a
	// descriptor recycled by a concurrent accept.
	err := p.reactor.armReadWrite(c)
	c.mu.Unlock()

	if err != nil {
		level.Debug(p.logger).Log("msg", "arm write failed", "fd", fd, "err", err)
		p.reactor.remove(c)
	}
}
