package store

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Memory is an in-memory store. It is intended for testing and for
// running a server with no persistent state.
type Memory struct {
	m     sync.RWMutex
	store map[string]*buf
}

var _ Store = &Memory{}

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string]*buf)}
}

// List returns a channel giving every key in the store.
//
// The listing goroutine takes a read lock while it runs, so do not
// mutate the store from the consuming loop.
func (ms *Memory) List() <-chan string {
	c := make(chan string)
	go func() {
		ms.m.RLock()
		for k := range ms.store {
			ms.m.RUnlock()
			c <- k
			ms.m.RLock()
		}
		ms.m.RUnlock()
		close(c)
	}()
	return c
}

// ListPrefix returns every key beginning with the given prefix.
func (ms *Memory) ListPrefix(prefix string) ([]string, error) {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	ms.m.RUnlock()
	return result, nil
}

// Open returns a reader for the given key along with its size.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("no key %s", key)
	}
	v.m.RLock()
	return v, int64(len(v.b)), nil
}

// A buf needs an RWMutex since a reader may be opened twice
// concurrently. The iswrite flag remembers which unlock to use on
// Close.
type buf struct {
	m       sync.RWMutex
	iswrite bool
	b       []byte
}

func (r *buf) Close() error {
	if r.iswrite {
		r.iswrite = false
		r.m.Unlock()
	} else {
		r.m.RUnlock()
	}
	return nil
}

func (r *buf) ReadAt(p []byte, off int64) (int, error) {
	if int(off) >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	return n, nil
}

func (r *buf) Write(p []byte) (int, error) {
	r.b = append(r.b, p...)
	return len(p), nil
}

// Create makes a new entry in the store and returns a writer for its
// content. The entry is locked until the writer is closed. An existing
// key is ErrKeyExists, the same as the file system store.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	r := &buf{}
	r.m.Lock()
	r.iswrite = true
	ms.m.Lock()
	if _, ok := ms.store[key]; ok {
		ms.m.Unlock()
		return nil, ErrKeyExists
	}
	ms.store[key] = r
	ms.m.Unlock()
	return r, nil
}

// Delete the given key. It is not an error if the key does not exist.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}
