// Package store provides the shared key-value mapping behind the server.
package store

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// NumBuckets is the fixed bucket count. Resizing is deferred; with the
// single-lock design a longer chain only costs a short linear scan.
const NumBuckets = 16

type entry struct {
	key   string
	value []byte
	next  *entry
}

// Store maps keys to opaque byte values. A single mutex serializes all
// operations: command execution is the only writer and each command touches
// the table exactly once, so finer-grained locking buys nothing here.
type Store struct {
	mu      sync.Mutex
	buckets [NumBuckets]*entry
	count   int
}

func New() *Store {
	return &Store{}
}

func bucketIndex(key string) int {
	return int(xxh3.HashString(key) % NumBuckets)
}

// Get returns an independent copy of the value for key, or ok=false if the
// key is absent. The copy decouples callers from concurrent Set/Del.
func (s *Store) Get(key string) (value []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.buckets[bucketIndex(key)]; e != nil; e = e.next {
		if e.key == key {
			out := make([]byte, len(e.value))
			copy(out, e.value)
			return out, true
		}
	}
	return nil, false
}

// Set installs the mapping, overwriting any prior value. The value bytes are
// copied in, so the caller's buffer may be reused afterwards.
func (s *Store) Set(key string, value []byte) {
	owned := make([]byte, len(value))
	copy(owned, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := bucketIndex(key)
	for e := s.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			e.value = owned
			return
		}
	}

	s.buckets[idx] = &entry{key: key, value: owned, next: s.buckets[idx]}
	s.count++
}

// Del removes the mapping for key if present, and is a no-op otherwise.
func (s *Store) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := bucketIndex(key)
	for pp := &s.buckets[idx]; *pp != nil; pp = &(*pp).next {
		if (*pp).key == key {
			*pp = (*pp).next
			s.count--
			return
		}
	}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
