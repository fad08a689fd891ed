package protocol

// Verbs recognized by the server. Matching is case-insensitive on the wire;
// ParseCommand normalizes to these values.
const (
	CmdGet = "GET"
	CmdSet = "SET"
	CmdDel = "DEL"
)

// Terminator frames requests and responses on the wire.
const Terminator = "\r\n"

// MaxRequestSize bounds one framed request, terminator included. A request
// that reaches this many bytes without a terminator is a protocol violation
// and the connection is dropped.
const MaxRequestSize = 1024

// Fixed response lines.
var (
	RespOK       = []byte("+OK\r\n")
	RespNil      = []byte("$-1\r\n")
	RespUnknown  = []byte("-ERR Unknown command or wrong args\r\n")
	RespBadFrame = []byte("-ERR Invalid command format\r\n")
)
