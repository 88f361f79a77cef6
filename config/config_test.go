package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New()
	require.NoError(t, c.Validate())

	opts := c.Store.PagerOptions()
	require.Equal(t, c.Store.BlockSize, opts.BlockSize)
	require.Equal(t, c.Store.Blocks, opts.BlockCount)

	treeOpts := c.Tree.Options()
	require.Equal(t, c.Tree.KeySize, treeOpts.KeySize)
	require.True(t, treeOpts.Unique)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(c *AppConfig){
		"log level":  func(c *AppConfig) { c.LogLevel = "loud" },
		"file":       func(c *AppConfig) { c.Store.File = "" },
		"block size": func(c *AppConfig) { c.Store.BlockSize = 0 },
		"cache":      func(c *AppConfig) { c.Store.CacheSize = -1 },
		"flush":      func(c *AppConfig) { c.Store.FlushInterval = -time.Second },
		"key size":   func(c *AppConfig) { c.Tree.KeySize = 0 },
		"value size": func(c *AppConfig) { c.Tree.ValueSize = 1 << 16 },
		"records":    func(c *AppConfig) { c.Seed.Records = -5 },
		"workers":    func(c *AppConfig) { c.Seed.Workers = 0 },
	} {
		c := New()
		mutate(c)
		require.Error(t, c.Validate(), name)
	}
}
