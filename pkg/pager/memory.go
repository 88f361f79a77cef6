package pager

import (
	"sync"
)

// Memory is a Store kept entirely in process memory.
type Memory struct {
	tracker

	mu        sync.RWMutex
	blockSize int
	blocks    [][]byte
}

func NewMemory(blockSize int, blockCount uint64) *Memory {
	blocks := make([][]byte, blockCount)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}

	return &Memory{
		blockSize: blockSize,
		blocks:    blocks,
	}
}

func (m *Memory) BlockSize() int { return m.blockSize }

func (m *Memory) BlockCount() uint64 { return uint64(len(m.blocks)) }

func (m *Memory) ReadBlock(addr uint64) ([]byte, error) {
	if err := checkAddr(addr, m.BlockCount()); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.reads.Add(1)
	buf := make([]byte, m.blockSize)
	copy(buf, m.blocks[addr])
	return buf, nil
}

func (m *Memory) WriteBlock(addr uint64, data []byte) error {
	if err := checkAddr(addr, m.BlockCount()); err != nil {
		return err
	}
	if err := checkSize(data, m.blockSize); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes.Add(1)
	copy(m.blocks[addr], data)
	return nil
}

func (m *Memory) NotifyAllocate(addr uint64) { m.allocate(addr) }

func (m *Memory) NotifyDeallocate(addr uint64) { m.deallocate(addr) }

// Snapshot returns a deep copy of every block.
func (m *Memory) Snapshot() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := make([][]byte, len(m.blocks))
	for i, b := range m.blocks {
		cp[i] = append([]byte(nil), b...)
	}
	return cp
}
