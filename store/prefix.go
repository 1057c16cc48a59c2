package store

import (
	"io"
	"strings"
)

// A Prefix scopes every key of an underlying store with a fixed
// leading string. Several stores can then share one root, each seeing
// only its own keys with the prefix stripped on the way out. The
// exposure stores of different processing stages use this to share a
// storage directory or bucket.
type Prefix struct {
	inner Store
	lead  string
}

var _ Store = &Prefix{}

// NewWithPrefix wraps s so every key passes through with the given
// prefix attached.
func NewWithPrefix(s Store, prefix string) *Prefix {
	return &Prefix{inner: s, lead: prefix}
}

func (p *Prefix) List() <-chan string {
	out := make(chan string)
	go func() {
		for key := range p.inner.List() {
			if strings.HasPrefix(key, p.lead) {
				out <- key[len(p.lead):]
			}
		}
		close(out)
	}()
	return out
}

func (p *Prefix) ListPrefix(prefix string) ([]string, error) {
	keys, err := p.inner.ListPrefix(p.lead + prefix)
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, p.lead) {
			result = append(result, key[len(p.lead):])
		}
	}
	return result, err
}

func (p *Prefix) Open(key string) (ReadAtCloser, int64, error) {
	return p.inner.Open(p.lead + key)
}

func (p *Prefix) Create(key string) (io.WriteCloser, error) {
	return p.inner.Create(p.lead + key)
}

func (p *Prefix) Delete(key string) error {
	return p.inner.Delete(p.lead + key)
}
