package config

import (
	"time"

	"go-btindex/pkg/pager"

	"github.com/pkg/errors"
)

type StoreConfig struct {
	File      string
	BlockSize int
	Blocks    uint64
	CacheSize int // blocks, 0 disables the cache
	Sync      bool

	// FlushInterval flushes the mapped file periodically when Sync is
	// off. 0 leaves flushing to Close.
	FlushInterval time.Duration
}

func NewStoreConfig() *StoreConfig {
	return &StoreConfig{
		File:      "data/index.db",
		BlockSize: 512,
		Blocks:    1024,
		CacheSize: 64,

		FlushInterval: 5 * time.Second,
	}
}

func (c *StoreConfig) Validate() error {
	switch {
	case c.File == "":
		return errors.New("file name is required")
	case c.BlockSize <= 0:
		return errors.Errorf("invalid block size %d", c.BlockSize)
	case c.CacheSize < 0:
		return errors.Errorf("invalid cache size %d", c.CacheSize)
	case c.FlushInterval < 0:
		return errors.Errorf("invalid flush interval %s", c.FlushInterval)
	}
	return nil
}

// PagerOptions returns the options used to open the store file.
func (c *StoreConfig) PagerOptions() *pager.Options {
	return &pager.Options{
		BlockSize:  c.BlockSize,
		BlockCount: c.Blocks,
		Sync:       c.Sync,
	}
}
