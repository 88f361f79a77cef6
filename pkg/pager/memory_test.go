package pager

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_ReadWrite(t *testing.T) {
	m := NewMemory(64, 4)
	require.Equal(t, 64, m.BlockSize())
	require.Equal(t, uint64(4), m.BlockCount())

	data := bytes.Repeat([]byte{0xAB}, 64)
	require.NoError(t, m.WriteBlock(2, data))

	got, err := m.ReadBlock(2)
	require.NoError(t, err)
	require.Equal(t, data, got)

	// returned buffers are copies
	got[0] = 0
	again, err := m.ReadBlock(2)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), again[0])

	stats := m.Stats()
	require.Equal(t, uint64(1), stats.Writes)
	require.Equal(t, uint64(2), stats.Reads)
}

func TestMemory_Errors(t *testing.T) {
	m := NewMemory(64, 4)

	_, err := m.ReadBlock(4)
	require.ErrorIs(t, err, ErrOutOfRange)

	require.ErrorIs(t, m.WriteBlock(4, make([]byte, 64)), ErrOutOfRange)
	require.ErrorIs(t, m.WriteBlock(1, make([]byte, 63)), ErrBlockSize)
}

func TestMemory_Notifications(t *testing.T) {
	m := NewMemory(64, 4)

	m.NotifyAllocate(1)
	m.NotifyAllocate(2)
	require.True(t, m.Allocated(1))

	m.NotifyDeallocate(1)
	require.False(t, m.Allocated(1))
	require.True(t, m.Allocated(2))

	stats := m.Stats()
	require.Equal(t, uint64(2), stats.Allocations)
	require.Equal(t, uint64(1), stats.Deallocations)
	require.Equal(t, 1, stats.InUse)
}
