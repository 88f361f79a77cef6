package cache

import (
	"bytes"
	"testing"

	"go-btindex/pkg/pager"

	"github.com/stretchr/testify/require"
)

func block(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestCache_Hits(t *testing.T) {
	store := pager.NewMemory(32, 8)
	require.NoError(t, store.WriteBlock(1, block(1)))

	c := New(store, 2)

	got, err := c.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, block(1), got)

	got, err = c.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, block(1), got)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, uint64(1), store.Stats().Reads)
}

func TestCache_WriteThrough(t *testing.T) {
	store := pager.NewMemory(32, 8)
	c := New(store, 2)

	require.NoError(t, c.WriteBlock(3, block(3)))

	direct, err := store.ReadBlock(3)
	require.NoError(t, err)
	require.Equal(t, block(3), direct)

	got, err := c.ReadBlock(3)
	require.NoError(t, err)
	require.Equal(t, block(3), got)
	require.Equal(t, uint64(1), c.Stats().Hits)

	require.ErrorIs(t, c.WriteBlock(9, block(9)), pager.ErrOutOfRange)
}

func TestCache_Eviction(t *testing.T) {
	store := pager.NewMemory(32, 8)
	c := New(store, 2)

	for _, addr := range []uint64{0, 1, 2} {
		require.NoError(t, c.WriteBlock(addr, block(byte(addr))))
	}
	require.Equal(t, 2, c.Stats().Cached)

	// block 0 was the oldest entry
	_, err := c.ReadBlock(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.Stats().Misses)

	c.Clear()
	require.Equal(t, 0, c.Stats().Cached)
}

func TestCache_Notifications(t *testing.T) {
	store := pager.NewMemory(32, 8)
	c := New(store, 2)

	c.NotifyAllocate(4)
	require.True(t, store.Allocated(4))
	c.NotifyDeallocate(4)
	require.False(t, store.Allocated(4))
}

// failingStore rejects writes while fail is set.
type failingStore struct {
	pager.Store
	fail bool
}

func (s *failingStore) WriteBlock(addr uint64, data []byte) error {
	if s.fail {
		return pager.ErrClosed
	}
	return s.Store.WriteBlock(addr, data)
}

func TestCache_FailedWriteKeepsRing(t *testing.T) {
	store := &failingStore{Store: pager.NewMemory(32, 8)}
	c := New(store, 2)

	require.NoError(t, c.WriteBlock(0, block(0)))
	require.NoError(t, c.WriteBlock(1, block(1)))

	store.fail = true
	require.ErrorIs(t, c.WriteBlock(0, block(7)), pager.ErrClosed)
	require.Equal(t, 1, c.Stats().Cached)
	store.fail = false

	// refills the slot of block 0 instead of taking a new one
	got, err := c.ReadBlock(0)
	require.NoError(t, err)
	require.Equal(t, block(0), got)
	require.Equal(t, uint64(1), c.Stats().Misses)

	// evicts block 0, the oldest slot; block 1 must stay cached
	require.NoError(t, c.WriteBlock(2, block(2)))
	got, err = c.ReadBlock(1)
	require.NoError(t, err)
	require.Equal(t, block(1), got)
	require.Equal(t, uint64(1), c.Stats().Misses)
	require.Equal(t, 2, c.Stats().Cached)
}
