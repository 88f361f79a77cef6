// Package pager provides fixed-size block storage addressed by block
// number. The index reads and writes whole blocks through the Store
// interface and reports allocation changes through its notification hooks.
package pager

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// ErrOutOfRange is returned for addresses at or beyond BlockCount.
	ErrOutOfRange = errors.New("block address out of range")

	// ErrBlockSize is returned when a write buffer is not exactly one block.
	ErrBlockSize = errors.New("buffer size differs from block size")

	ErrReadOnly = errors.New("store is read-only")
	ErrClosed   = errors.New("store is closed")
)

// Store is the block storage contract consumed by the index. Reads and
// writes are synchronous: a write has reached the store when it returns.
// NotifyAllocate and NotifyDeallocate are bookkeeping hooks and never fail.
type Store interface {
	BlockSize() int
	BlockCount() uint64
	ReadBlock(addr uint64) ([]byte, error)
	WriteBlock(addr uint64, data []byte) error
	NotifyAllocate(addr uint64)
	NotifyDeallocate(addr uint64)
}

// Stats is a snapshot of store activity.
type Stats struct {
	Reads         uint64
	Writes        uint64
	Allocations   uint64
	Deallocations uint64
	InUse         int
}

// tracker holds the counters and allocation bookkeeping shared by the
// store implementations. The zero value is ready to use.
type tracker struct {
	reads, writes, allocs, deallocs atomic.Uint64

	mu    sync.Mutex
	inUse map[uint64]struct{}
}

func (t *tracker) allocate(addr uint64) {
	t.allocs.Add(1)
	t.mu.Lock()
	if t.inUse == nil {
		t.inUse = map[uint64]struct{}{}
	}
	t.inUse[addr] = struct{}{}
	t.mu.Unlock()
}

func (t *tracker) deallocate(addr uint64) {
	t.deallocs.Add(1)
	t.mu.Lock()
	delete(t.inUse, addr)
	t.mu.Unlock()
}

// Allocated reports whether addr was announced through NotifyAllocate
// and not released since.
func (t *tracker) Allocated(addr uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inUse[addr]
	return ok
}

func (t *tracker) Stats() Stats {
	t.mu.Lock()
	inUse := len(t.inUse)
	t.mu.Unlock()

	return Stats{
		Reads:         t.reads.Load(),
		Writes:        t.writes.Load(),
		Allocations:   t.allocs.Load(),
		Deallocations: t.deallocs.Load(),
		InUse:         inUse,
	}
}

func checkAddr(addr, count uint64) error {
	if addr >= count {
		return errors.Wrapf(ErrOutOfRange, "block %d of %d", addr, count)
	}
	return nil
}

func checkSize(data []byte, blockSize int) error {
	if len(data) != blockSize {
		return errors.Wrapf(ErrBlockSize, "got %d bytes, block size %d", len(data), blockSize)
	}
	return nil
}
