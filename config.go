package minired

import (
	"github.com/go-kit/log"
)

// Config holds server configuration. The zero value is usable: every field
// has a default.
type Config struct {
	// Addr is the TCP listen address, "host:port" or ":port". The host must
	// be empty or an IPv4 address; the server binds the wildcard address
	// when it is empty. Default ":6379". Port 0 asks the OS for a free
	// port; Server.Addr reports the bound address.
	Addr string

	// Workers is the worker pool size. Default 4.
	Workers int

	// MaxSlabs caps how many connection slab regions the arena may create.
	// Default 100.
	MaxSlabs int

	// ConnsPerSlab is the number of connection slots per slab region.
	// Default 256.
	ConnsPerSlab int

	// Logger receives server logs. Default is a nop logger.
	Logger log.Logger
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	// MaxSlabs and ConnsPerSlab fall through to the arena defaults.
	return c
}
