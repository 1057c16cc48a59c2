package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"io"
)

// A HashWriter wraps an io.Writer and computes the MD5 and SHA256
// hashes of everything written through it. Payload streams are
// checksummed on save and verified on load with the same type.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	md5       hash.Hash
	sha256    hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{
		md5:    md5.New(),
		sha256: sha256.New(),
	}
	hw.Writer = io.MultiWriter(w, hw.md5, hw.sha256)
	return hw
}

// NewHashWriterPlain returns a HashWriter that does not wrap an output
// stream. It only computes the checksums of the data written to it.
func NewHashWriterPlain() *HashWriter {
	hw := &HashWriter{
		md5:    md5.New(),
		sha256: sha256.New(),
	}
	hw.Writer = io.MultiWriter(hw.md5, hw.sha256)
	return hw
}

// CheckMD5 returns the MD5 hash of the data written so far and compares
// it with the goal. An empty goal matches anything.
func (hw *HashWriter) CheckMD5(goal []byte) ([]byte, bool) {
	computed := hw.md5.Sum(nil)
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}

// CheckSHA256 returns the SHA256 hash of the data written so far and
// compares it with the goal. An empty goal matches anything.
func (hw *HashWriter) CheckSHA256(goal []byte) ([]byte, bool) {
	computed := hw.sha256.Sum(nil)
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}

// VerifyStreamHash checksums the reader and compares the result against
// the given md5 and sha256 values. Pass an empty slice to skip either
// comparison. The reader is not closed.
func VerifyStreamHash(r io.Reader, md5goal, sha256goal []byte) (bool, error) {
	if len(md5goal) == 0 && len(sha256goal) == 0 {
		return true, nil
	}
	hw := NewHashWriterPlain()
	_, err := io.Copy(hw, r)
	result := true
	if len(md5goal) > 0 {
		_, ok := hw.CheckMD5(md5goal)
		result = result && ok
	}
	if len(sha256goal) > 0 {
		_, ok := hw.CheckSHA256(sha256goal)
		result = result && ok
	}
	return result, err
}
