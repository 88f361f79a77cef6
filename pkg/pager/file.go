package pager

import (
	"os"
	"sync"

	"go-btindex/util/helpers"
	"go-btindex/util/logger"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// Options configures a file backed store.
type Options struct {
	// BlockSize is the size of every block in bytes.
	BlockSize int `json:"block_size"`

	// BlockCount is the number of blocks the file holds. The file is grown
	// to fit when it is smaller. Zero means "use the existing file size".
	BlockCount uint64 `json:"block_count"`

	ReadOnly bool `json:"read_only"`

	// Sync flushes the mapping after every write, so WriteBlock returns
	// only once the block reached the disk.
	Sync bool `json:"sync"`

	Mode os.FileMode `json:"mode"`
}

// File is a Store backed by a memory mapped file.
type File struct {
	tracker

	mu         sync.RWMutex
	file       *os.File
	data       mmap.MMap
	blockSize  int
	count      uint64
	readOnly   bool
	syncWrites bool
}

// Open opens or creates the named file as a block store.
func Open(fileName string, opts *Options) (*File, error) {
	if opts == nil || opts.BlockSize <= 0 {
		return nil, errors.New("block size must be positive")
	}

	mode := opts.Mode
	if mode == 0 {
		mode = 0644
	}

	flag := os.O_RDWR | os.O_CREATE
	prot := mmap.RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
		prot = mmap.RDONLY
	} else if err := helpers.CreateParentDir(fileName); err != nil {
		return nil, errors.Wrap(err, "failed to create store directory")
	}

	f, err := os.OpenFile(fileName, flag, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open store file '%s'", fileName)
	}

	count, err := fitFile(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	data, err := mmap.Map(f, prot, 0)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to map store file")
	}

	logger.For("pager").Infof("opened '%s': %d blocks of %d bytes", fileName, count, opts.BlockSize)
	return &File{
		file:       f,
		data:       data,
		blockSize:  opts.BlockSize,
		count:      count,
		readOnly:   opts.ReadOnly,
		syncWrites: opts.Sync,
	}, nil
}

// fitFile returns the block count of f, growing f if opts ask for more
// blocks than it has.
func fitFile(f *os.File, opts *Options) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "failed to stat store file")
	}

	size := fi.Size()
	if size%int64(opts.BlockSize) != 0 {
		return 0, errors.Errorf("file size %d is not a multiple of block size %d", size, opts.BlockSize)
	}

	existing := uint64(size) / uint64(opts.BlockSize)
	switch {
	case opts.BlockCount == 0 && existing == 0:
		return 0, errors.New("block count required for an empty store file")
	case opts.BlockCount == 0 || opts.BlockCount == existing:
		return existing, nil
	case opts.BlockCount < existing:
		return 0, errors.Errorf("store file holds %d blocks, %d requested", existing, opts.BlockCount)
	case opts.ReadOnly:
		return 0, errors.Wrap(ErrReadOnly, "cannot grow store file")
	}

	if err := f.Truncate(int64(opts.BlockCount) * int64(opts.BlockSize)); err != nil {
		return 0, errors.Wrap(err, "failed to grow store file")
	}
	return opts.BlockCount, nil
}

func (f *File) BlockSize() int { return f.blockSize }

func (f *File) BlockCount() uint64 { return f.count }

func (f *File) ReadBlock(addr uint64) ([]byte, error) {
	if err := checkAddr(addr, f.count); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.data == nil {
		return nil, ErrClosed
	}

	f.reads.Add(1)
	off := int(addr) * f.blockSize
	buf := make([]byte, f.blockSize)
	copy(buf, f.data[off:off+f.blockSize])
	return buf, nil
}

func (f *File) WriteBlock(addr uint64, data []byte) error {
	if f.readOnly {
		return ErrReadOnly
	}
	if err := checkAddr(addr, f.count); err != nil {
		return err
	}
	if err := checkSize(data, f.blockSize); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.data == nil {
		return ErrClosed
	}

	f.writes.Add(1)
	off := int(addr) * f.blockSize
	copy(f.data[off:off+f.blockSize], data)
	if f.syncWrites {
		return errors.Wrapf(f.data.Flush(), "failed to flush block %d", addr)
	}
	return nil
}

func (f *File) NotifyAllocate(addr uint64) { f.allocate(addr) }

func (f *File) NotifyDeallocate(addr uint64) { f.deallocate(addr) }

// Flush writes every modified block back to the file.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.data == nil || f.readOnly {
		return nil
	}
	return errors.Wrap(f.data.Flush(), "failed to flush store file")
}

// Close flushes and unmaps the file. Closing twice is a no-op; block
// reads and writes after Close fail with ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.data == nil {
		return nil
	}

	if !f.readOnly {
		if err := f.data.Flush(); err != nil {
			return errors.Wrap(err, "failed to flush store file")
		}
	}
	if err := f.data.Unmap(); err != nil {
		return errors.Wrap(err, "failed to unmap store file")
	}
	f.data = nil

	logger.For("pager").Infof("closed '%s'", f.file.Name())
	return errors.Wrap(f.file.Close(), "failed to close store file")
}
