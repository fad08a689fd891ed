// Package client is a pooled client for the minired wire protocol, used by
// the bundled tools and integration tests.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/minired/internal"
	"github.com/pior/minired/protocol"
)

var (
	// ErrCacheMiss is returned by Get when the key is absent.
	ErrCacheMiss = errors.New("minired: cache miss")
	// ErrServerError wraps an -ERR reply from the server.
	ErrServerError = errors.New("minired: server error")
	// ErrInvalidKey reports a key the wire protocol cannot carry.
	ErrInvalidKey = errors.New("minired: invalid key")
	// ErrInvalidValue reports a value the wire protocol cannot carry.
	ErrInvalidValue = errors.New("minired: invalid value")
)

// DialContextFunc dials a network connection. Compatible with
// net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds client options.
type Config struct {
	// Address of the server, e.g. "127.0.0.1:6379".
	Address string

	// DialTimeout bounds connection establishment. Default 5 seconds.
	DialTimeout time.Duration

	// DialFunc optionally replaces the default dialer.
	DialFunc DialContextFunc

	// MaxConns caps the connection pool. Default 4.
	MaxConns int32

	// DisableCircuitBreaker turns off the breaker in front of the pool.
	DisableCircuitBreaker bool
}

// Client is a pooled, breaker-protected client. Safe for concurrent use.
type Client struct {
	config  Config
	pool    *puddle.Pool[*Connection]
	breaker *gobreaker.CircuitBreaker[[]byte]
	stats   *statsCollector
	bufs    *internal.ByteBufferPool
}

// New creates a client. No connection is dialed until the first operation.
func New(config Config) (*Client, error) {
	if config.Address == "" {
		return nil, errors.New("minired: address is required")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 4
	}
	if config.DialFunc == nil {
		var d net.Dialer
		config.DialFunc = d.DialContext
	}

	c := &Client{
		config: config,
		stats:  newStatsCollector(),
		bufs:   internal.NewByteBufferPool(64),
	}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
			defer cancel()
			nc, err := config.DialFunc(dialCtx, "tcp", config.Address)
			if err != nil {
				return nil, err
			}
			return NewConnection(nc), nil
		},
		Destructor: func(conn *Connection) {
			_ = conn.Close()
		},
		MaxSize: config.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	c.pool = pool

	if !config.DisableCircuitBreaker {
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name: "minired:" + config.Address,
		})
	}
	return c, nil
}

// Get returns the value for key, or ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if !validToken(key) {
		return nil, ErrInvalidKey
	}

	line, err := c.roundtrip(ctx, protocol.CmdGet, key, nil)
	if err != nil {
		c.stats.recordError()
		return nil, err
	}

	kind, payload, err := protocol.ParseReply(line)
	switch {
	case err != nil:
		c.stats.recordError()
		return nil, err
	case kind == protocol.ReplyNil:
		c.stats.recordGet(false)
		return nil, ErrCacheMiss
	case kind == protocol.ReplyError:
		c.stats.recordError()
		return nil, fmt.Errorf("%w: %s", ErrServerError, payload)
	default:
		c.stats.recordGet(true)
		return payload, nil
	}
}

// Set installs key -> value.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	if !validToken(key) {
		return ErrInvalidKey
	}
	if !validToken(string(value)) {
		return ErrInvalidValue
	}

	line, err := c.roundtrip(ctx, protocol.CmdSet, key, value)
	if err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordSet()
	return expectOK(line)
}

// Del removes key. Removing an absent key is not an error.
func (c *Client) Del(ctx context.Context, key string) error {
	if !validToken(key) {
		return ErrInvalidKey
	}

	line, err := c.roundtrip(ctx, protocol.CmdDel, key, nil)
	if err != nil {
		c.stats.recordError()
		return err
	}
	c.stats.recordDel()
	return expectOK(line)
}

// Stats returns a snapshot of operation counters.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// Close tears down the pool and its connections.
func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) roundtrip(ctx context.Context, verb, key string, value []byte) ([]byte, error) {
	buf := c.bufs.Get()
	defer c.bufs.Put(buf)

	buf.WriteString(verb)
	buf.WriteByte(' ')
	buf.WriteString(key)
	if value != nil {
		buf.WriteByte(' ')
		buf.Write(value)
	}
	buf.WriteString(protocol.Terminator)
	req := buf.Bytes()

	do := func() ([]byte, error) {
		res, err := c.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		line, err := res.Value().Do(req)
		if err != nil {
			// A transport failure poisons the connection.
			res.Destroy()
			c.stats.recordConnectionDestroyed()
			return nil, err
		}
		res.Release()
		return line, nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(do)
	}
	return do()
}

func expectOK(line []byte) error {
	kind, payload, err := protocol.ParseReply(line)
	switch {
	case err != nil:
		return err
	case kind == protocol.ReplyError:
		return fmt.Errorf("%w: %s", ErrServerError, payload)
	case kind == protocol.ReplySimple:
		return nil
	default:
		return protocol.ErrMalformedReply
	}
}

// validToken accepts the whitespace-free tokens the line protocol can carry.
func validToken(s string) bool {
	if len(s) == 0 || len(s) > protocol.MaxRequestSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return false
		}
	}
	return true
}
