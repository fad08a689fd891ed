package protocol

import (
	"bytes"
	"testing"
)

func FuzzParseCommand(f *testing.F) {
	f.Add([]byte("GET foo"))
	f.Add([]byte("SET foo bar"))
	f.Add([]byte("DEL foo"))
	f.Add([]byte(""))
	f.Add([]byte("   "))
	f.Add([]byte("set  a  b  c"))
	f.Add([]byte{0x00, 0xff, 0x20})

	f.Fuzz(func(t *testing.T, line []byte) {
		cmd, err := ParseCommand(line)
		if err != nil {
			return
		}
		// A parsed command always has a verb and a key, and the key is a
		// field of the input.
		if cmd.Verb == "" || len(cmd.Key) == 0 {
			t.Fatalf("accepted command without verb or key: %q", line)
		}
		if !bytes.Contains(line, cmd.Key) {
			t.Fatalf("key %q not a substring of input %q", cmd.Key, line)
		}
	})
}

func FuzzFrame(f *testing.F) {
	f.Add([]byte("GET a\r\nSET b c\r\n"))
	f.Add([]byte("\r\n\r\n"))
	f.Add([]byte("no terminator"))

	f.Fuzz(func(t *testing.T, buf []byte) {
		line, consumed, ok := Frame(buf)
		if !ok {
			if consumed != 0 {
				t.Fatalf("consumed %d without a frame", consumed)
			}
			return
		}
		if consumed < 2 || consumed > len(buf) {
			t.Fatalf("consumed %d out of range for %q", consumed, buf)
		}
		prefix := buf[:consumed]
		if !bytes.HasSuffix(prefix, []byte(Terminator)) || !bytes.Equal(prefix[:consumed-2], line) {
			t.Fatalf("frame %q + terminator != consumed prefix of %q", line, buf)
		}
	})
}
