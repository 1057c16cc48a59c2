package store

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// mmapReader serves ReadAt from a memory-mapped file. Pixel payloads
// are read with many small ReadAt calls, and the mapping turns those
// into plain memory accesses.
type mmapReader struct {
	f *os.File
	m mmap.MMap
}

// openMmap maps the open file f. The caller keeps ownership of f until
// openMmap succeeds; afterwards Close on the returned reader closes it.
func openMmap(f *os.File, size int64) (ReadAtCloser, error) {
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &mmapReader{f: f, m: m}, nil
}

func (r *mmapReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.m)) {
		return 0, io.EOF
	}
	n := copy(p, r.m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *mmapReader) Close() error {
	err := r.m.Unmap()
	err2 := r.f.Close()
	if err == nil {
		err = err2
	}
	return err
}
