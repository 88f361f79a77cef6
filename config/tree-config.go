package config

import (
	"go-btindex/pkg/bptree"

	"github.com/pkg/errors"
)

type TreeConfig struct {
	KeySize   int
	ValueSize int
	Unique    bool

	// Format reinitializes the store instead of mounting it.
	Format bool
}

func NewTreeConfig() *TreeConfig {
	return &TreeConfig{
		KeySize:   16,
		ValueSize: 32,
		Unique:    true,
	}
}

func (c *TreeConfig) Validate() error {
	if c.KeySize <= 0 || c.KeySize > 0xFFFF {
		return errors.Errorf("invalid key size %d", c.KeySize)
	}
	if c.ValueSize <= 0 || c.ValueSize > 0xFFFF {
		return errors.Errorf("invalid value size %d", c.ValueSize)
	}
	return nil
}

func (c *TreeConfig) Options() *bptree.Options {
	return &bptree.Options{
		KeySize:   c.KeySize,
		ValueSize: c.ValueSize,
		Unique:    c.Unique,
	}
}
