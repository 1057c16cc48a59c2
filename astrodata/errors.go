package astrodata

import (
	"errors"
	"fmt"
)

var (
	// ErrNoName indicates an append of a bare array or table to the
	// container root without a name to file it under.
	ErrNoName = errors.New("no name given for top-level extension")

	// ErrBadVersion indicates a version number that is not a positive
	// integer.
	ErrBadVersion = errors.New("version must be a positive integer")

	// ErrRootAttachment indicates an attempt to append a bare DQ or VAR
	// array at the container root. Masks and variance planes belong to a
	// specific extension.
	ErrRootAttachment = errors.New("mask and variance arrays attach to an extension, not the container")

	// ErrExtAttachment indicates an attempt to attach a root-only name,
	// such as MDF, to a single extension.
	ErrExtAttachment = errors.New("name can only be appended at the container level")

	// ErrSliceAppend indicates an append targeted at a slice holding
	// more than one extension. Appends go to the container root or to a
	// single-extension slice.
	ErrSliceAppend = errors.New("append needs the container root or a single-extension slice")
)

// A ConflictError reports an (name, version) pair, or a singleton name,
// which already exists in the container.
type ConflictError struct {
	Name string
	Ver  int
}

func (e *ConflictError) Error() string {
	if e.Ver > 0 {
		return fmt.Sprintf("extension (%s, %d) already exists", e.Name, e.Ver)
	}
	return fmt.Sprintf("extension %s already exists", e.Name)
}

// A NotFoundError reports a lookup or deletion keyed by something not in
// the container.
type NotFoundError string

func (e NotFoundError) Error() string {
	return "no extension " + string(e)
}
