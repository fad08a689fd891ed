package client

import (
	"bufio"
	"bytes"
	"net"
)

// Connection wraps a network connection with buffered reader and writer.
type Connection struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

// Do writes one framed request and reads one response line. The returned
// line has the terminator stripped and is an independent copy, so it stays
// valid after the connection returns to the pool.
func (c *Connection) Do(req []byte) ([]byte, error) {
	if _, err := c.w.Write(req); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}

	line, err := c.r.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	return append([]byte(nil), line...), nil
}

func (c *Connection) Close() error {
	return c.conn.Close()
}
