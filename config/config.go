// Package config holds the settings of the index command. Defaults come
// from New; main overrides them from command line flags.
package config

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type AppConfig struct {
	Store *StoreConfig
	Tree  *TreeConfig
	Seed  *SeedConfig

	LogLevel string
}

func New() *AppConfig {
	return &AppConfig{
		Store:    NewStoreConfig(),
		Tree:     NewTreeConfig(),
		Seed:     NewSeedConfig(),
		LogLevel: "info",
	}
}

// Validate reports the first setting that cannot work.
func (c *AppConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	if err := c.Store.Validate(); err != nil {
		return errors.Wrap(err, "store")
	}
	if err := c.Tree.Validate(); err != nil {
		return errors.Wrap(err, "tree")
	}
	if c.Seed.Records < 0 {
		return errors.Errorf("seed: negative record count %d", c.Seed.Records)
	}
	if c.Seed.Workers < 1 {
		return errors.Errorf("seed: need at least one worker, got %d", c.Seed.Workers)
	}
	return nil
}
