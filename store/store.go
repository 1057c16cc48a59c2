// Package store provides a goroutine-safe key-value interface where
// values are streams rather than opaque byte slices. Exposure metadata
// documents are small, but pixel payload streams can be large, and the
// stream interface lets both kinds share one storage abstraction.
//
// The FileSystem store is the usual choice. Memory is for testing, and
// S3 keeps the streams in a bucket.
package store

import (
	"io"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store is the basic stream based key-value store. Values are immutable
// once stored, but a key may be deleted and then created again with new
// content.
//
// The FileSystem store uses keys as file names, so keys must not
// contain a forward slash.
type Store interface {
	ROStore
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

// ROStore is the read-only half of a Store: listing and retrieval.
type ROStore interface {
	List() <-chan string
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

// NewReader converts an io.ReaderAt into an io.Reader starting at
// offset zero. A utility for working with the result of Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// a short read is not an error for an io.Reader
		err = nil
	}
	return
}
