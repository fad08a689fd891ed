package protocol

import (
	"bytes"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		verb    string
		key     string
		value   string
		wantErr error
	}{
		{
			name: "simple get",
			line: "GET foo",
			verb: CmdGet,
			key:  "foo",
		},
		{
			name: "lowercase verb",
			line: "get foo",
			verb: CmdGet,
			key:  "foo",
		},
		{
			name:  "mixed case verb",
			line:  "SeT foo bar",
			verb:  CmdSet,
			key:   "foo",
			value: "bar",
		},
		{
			name:  "simple set",
			line:  "SET foo bar",
			verb:  CmdSet,
			key:   "foo",
			value: "bar",
		},
		{
			name: "simple del",
			line: "DEL foo",
			verb: CmdDel,
			key:  "foo",
		},
		{
			name: "get ignores extra tokens",
			line: "GET foo junk",
			verb: CmdGet,
			key:  "foo",
		},
		{
			name:  "set ignores extra tokens",
			line:  "SET foo bar junk",
			verb:  CmdSet,
			key:   "foo",
			value: "bar",
		},
		{
			name: "repeated spaces between tokens",
			line: "GET   foo",
			verb: CmdGet,
			key:  "foo",
		},
		{
			name:    "single token",
			line:    "HELLO",
			wantErr: ErrBadFormat,
		},
		{
			name:    "empty line",
			line:    "",
			wantErr: ErrBadFormat,
		},
		{
			name:    "unknown verb",
			line:    "FROB x",
			wantErr: ErrUnknownCommand,
		},
		{
			name:    "set missing value",
			line:    "SET foo",
			wantErr: ErrUnknownCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.line))
			if err != tt.wantErr {
				t.Fatalf("ParseCommand(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if cmd.Verb != tt.verb {
				t.Errorf("verb = %q, want %q", cmd.Verb, tt.verb)
			}
			if string(cmd.Key) != tt.key {
				t.Errorf("key = %q, want %q", cmd.Key, tt.key)
			}
			if string(cmd.Value) != tt.value {
				t.Errorf("value = %q, want %q", cmd.Value, tt.value)
			}
		})
	}
}

func TestAppendValue(t *testing.T) {
	got := AppendValue(nil, []byte("bar"))
	if string(got) != "+bar\r\n" {
		t.Errorf("AppendValue() = %q, want %q", got, "+bar\r\n")
	}

	// Appends to existing content without clobbering it.
	got = AppendValue([]byte("x"), []byte("y"))
	if string(got) != "x+y\r\n" {
		t.Errorf("AppendValue() = %q, want %q", got, "x+y\r\n")
	}
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name     string
		buf      string
		line     string
		consumed int
		ok       bool
	}{
		{"complete request", "GET foo\r\n", "GET foo", 9, true},
		{"partial request", "GET fo", "", 0, false},
		{"two requests returns first", "SET a 1\r\nGET a\r\n", "SET a 1", 9, true},
		{"empty line", "\r\n", "", 2, true},
		{"bare CR is not a terminator", "GET foo\r", "", 0, false},
		{"empty buffer", "", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, consumed, ok := Frame([]byte(tt.buf))
			if ok != tt.ok || consumed != tt.consumed || string(line) != tt.line {
				t.Errorf("Frame(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.buf, line, consumed, ok, tt.line, tt.consumed, tt.ok)
			}
		})
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    ReplyKind
		payload string
		wantErr bool
	}{
		{"ok", "+OK", ReplySimple, "OK", false},
		{"value", "+bar", ReplySimple, "bar", false},
		{"empty value", "+", ReplySimple, "", false},
		{"nil marker", "$-1", ReplyNil, "", false},
		{"error", "-ERR Unknown command or wrong args", ReplyError, "ERR Unknown command or wrong args", false},
		{"empty line", "", 0, "", true},
		{"garbage", "hello", 0, "", true},
		{"bulk not supported", "$3", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, payload, err := ParseReply([]byte(tt.line))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReply(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if kind != tt.kind || !bytes.Equal(payload, []byte(tt.payload)) {
				t.Errorf("ParseReply(%q) = (%v, %q), want (%v, %q)", tt.line, kind, payload, tt.kind, tt.payload)
			}
		})
	}
}
