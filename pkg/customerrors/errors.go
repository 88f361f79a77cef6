// Package customerrors defines the error kinds shared by the index and its
// block stores.
package customerrors

import (
	"github.com/pkg/errors"
)

var (
	// ErrKeyNotFound is returned from lookup and update when the key is
	// not present in the index.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoSpace is returned when the free list is exhausted.
	ErrNoSpace = errors.New("no free blocks left")

	// ErrConflict is returned by insert when the key already exists.
	ErrConflict = errors.New("key already exists")

	// ErrInsane is returned when a node carries a type tag that cannot
	// appear at that point of a traversal. The instance must not be used
	// afterwards.
	ErrInsane = errors.New("unexpected node type")

	// ErrInvariant is returned when the allocator finds a block in a state
	// it can never legally be in (allocating a non-free block, freeing a
	// free one). Fatal for the instance.
	ErrInvariant = errors.New("allocator invariant violated")

	ErrUnimplemented = errors.New("operation not implemented")

	// ErrKeySize and ErrValueSize are returned when a payload does not
	// have the configured fixed length.
	ErrKeySize   = errors.New("invalid key size")
	ErrValueSize = errors.New("invalid value size")

	// ErrBlockTooSmall is returned when a block cannot hold enough slots
	// to split nodes.
	ErrBlockTooSmall = errors.New("block size too small for key/value sizes")

	ErrNotMounted = errors.New("index is not mounted")

	// ErrGeometry is returned by mount when the on-disk key, value or block
	// sizes differ from the ones the index was opened with.
	ErrGeometry = errors.New("index geometry mismatch")

	ErrBadSuperblock = errors.New("invalid superblock")
)

// IsFatal reports whether err leaves the index in an unusable state.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInsane) || errors.Is(err, ErrInvariant)
}
