package minired

const (
	// DefaultAddr is the listen address used when Config.Addr is empty.
	DefaultAddr = ":6379"

	// DefaultWorkers is the worker pool size used when Config.Workers is zero.
	DefaultWorkers = 4

	// ReadBufferSize bounds one connection's inbound buffer. A request that
	// fills it without a terminator is oversized and the connection is
	// dropped.
	ReadBufferSize = 1024

	// WriteBufferSize bounds one connection's outbound buffer. The largest
	// response is a value echo, and values are bounded by the request size,
	// so a response always fits.
	WriteBufferSize = 4096

	// maxEvents is the epoll batch size per wakeup.
	maxEvents = 64
)
