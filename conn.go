package minired

import (
	"sync"

	"github.com/pior/minired/arena"
)

// connState tags where a connection is in its request cycle. The cycle is
// strictly reading -> processing -> writing -> reading; closing is terminal.
type connState int32

const (
	stateReading connState = iota
	stateProcessing
	stateWriting
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateProcessing:
		return "processing"
	case stateWriting:
		return "writing"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// conn is the per-connection state, loaned out of the client arena. The
// reactor owns the read side (rbuf, rpos) exclusively; mu guards the write
// side (wbuf, wpos, wtotal) and the state tag, which cross the
// reactor/worker boundary.
type conn struct {
	fd     int
	handle arena.Handle

	rbuf [ReadBufferSize]byte
	rpos int

	mu     sync.Mutex
	state  connState
	wbuf   [WriteBufferSize]byte
	wpos   int
	wtotal int
}
