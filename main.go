package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-btindex/cli"
	"go-btindex/config"
	"go-btindex/pkg/bptree"
	"go-btindex/pkg/cache"
	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/pager"
	"go-btindex/util/helpers"
	"go-btindex/util/logger"
	"go-btindex/util/timer"

	"github.com/go-faker/faker/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var log = logger.For("main")

func main() {
	configs := config.New()
	setupFlags(configs)

	if err := configs.Validate(); err != nil {
		fatal(err)
	}
	if err := logger.SetLevel(configs.LogLevel); err != nil {
		fatal(err)
	}

	file, err := pager.Open(configs.Store.File, configs.Store.PagerOptions())
	if err != nil {
		fatal(err)
	}

	var store pager.Store = file
	var blockCache *cache.Cache
	if configs.Store.CacheSize > 0 {
		blockCache = cache.New(file, configs.Store.CacheSize)
		store = blockCache
	}

	tree, err := bptree.New(store, configs.Tree.Options())
	if err != nil {
		closeAndExit(file, err)
	}

	if configs.Tree.Format {
		err = tree.Format()
	} else {
		err = tree.Mount()
	}
	if err != nil {
		closeAndExit(file, err)
	}

	if configs.Seed.Enabled {
		if err := seed(tree, configs); err != nil {
			log.Errorf("seeding stopped: %v", err)
		}
	}

	stopFlush := func() {}
	if !configs.Store.Sync && configs.Store.FlushInterval > 0 {
		stopFlush = timer.Every(configs.Store.FlushInterval, func() {
			if err := file.Flush(); err != nil {
				log.Warnf("periodic flush failed: %v", err)
			}
		})
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
		q := <-quit
		fmt.Printf("\n%s signal received, stopping gracefully...\n", q.String())
		stopFlush()
		shutdown(tree, file)
		os.Exit(0)
	}()

	shell := cli.New(bufio.NewScanner(os.Stdin), os.Stdout, tree, configs.Tree.KeySize, configs.Tree.ValueSize)
	shell.AddReport("store", func() string { return fmt.Sprintf("%+v", file.Stats()) })
	if blockCache != nil {
		shell.AddReport("cache", func() string { return fmt.Sprintf("%+v", blockCache.Stats()) })
	}
	shell.Start()

	stopFlush()
	shutdown(tree, file)
}

func setupFlags(c *config.AppConfig) {
	flag.StringVar(&c.Store.File, "file", c.Store.File, "Index file, created when missing.")
	flag.IntVar(&c.Store.BlockSize, "block-size", c.Store.BlockSize, "Block size in bytes.")
	flag.Uint64Var(&c.Store.Blocks, "blocks", c.Store.Blocks, "Number of blocks; 0 keeps the size of an existing file.")
	flag.IntVar(&c.Store.CacheSize, "cache", c.Store.CacheSize, "Blocks kept in the write-through cache; 0 disables it.")
	flag.BoolVar(&c.Store.Sync, "sync", c.Store.Sync, "Flush the file after every block write.")
	flag.DurationVar(&c.Store.FlushInterval, "flush-interval", c.Store.FlushInterval, "Flush the file periodically when -sync is off; 0 disables.")
	flag.IntVar(&c.Tree.KeySize, "key-size", c.Tree.KeySize, "Fixed key size in bytes.")
	flag.IntVar(&c.Tree.ValueSize, "value-size", c.Tree.ValueSize, "Fixed value size in bytes.")
	flag.BoolVar(&c.Tree.Unique, "unique", c.Tree.Unique, "Unique flag recorded in the superblock.")
	flag.BoolVar(&c.Tree.Format, "format", c.Tree.Format, "Format the file instead of mounting it.")
	flag.BoolVar(&c.Seed.Enabled, "seed", c.Seed.Enabled, "Seed the index using records created with go-faker.")
	flag.IntVar(&c.Seed.Records, "records", c.Seed.Records, "Amount of records to seed the index with upon startup.")
	flag.IntVar(&c.Seed.Workers, "workers", c.Seed.Workers, "Concurrent seeding workers.")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error).")
	flag.Usage = func() {
		fmt.Println("\nB+ Tree index\n\nArguments:")
		flag.PrintDefaults()
	}
	flag.Parse()
}

// seed inserts random records from several workers. Duplicate words are
// skipped; running out of blocks ends seeding early.
func seed(tree *bptree.BPlusTree, c *config.AppConfig) error {
	var g errgroup.Group
	per := c.Seed.Records / c.Seed.Workers

	for w := 0; w < c.Seed.Workers; w++ {
		n := per
		if w == 0 {
			n += c.Seed.Records % c.Seed.Workers
		}

		g.Go(func() error {
			for i := 0; i < n; i++ {
				key, _ := helpers.Pad([]byte(truncate(faker.Word()+faker.Word(), c.Tree.KeySize)), c.Tree.KeySize)
				val, _ := helpers.Pad([]byte(truncate(faker.Word()+faker.Word(), c.Tree.ValueSize)), c.Tree.ValueSize)

				err := tree.Insert(key, val)
				if errors.Is(err, customerrors.ErrConflict) {
					continue
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if st, serr := tree.Stats(); serr == nil {
		log.Infof("seeded index: %s", st)
	}
	return err
}

func truncate(s string, n int) string {
	return s[:helpers.Min(len(s), n)]
}

func shutdown(tree *bptree.BPlusTree, file *pager.File) {
	if err := tree.Unmount(); err != nil && !errors.Is(err, customerrors.ErrNotMounted) {
		log.Errorf("error on unmount: %v", err)
	}
	if err := file.Close(); err != nil {
		log.Errorf("error on gracefully stopping: %v", err)
	}
}

func closeAndExit(file *pager.File, err error) {
	file.Close()
	fatal(err)
}

func fatal(val interface{}) {
	fmt.Println(val)
	os.Exit(1)
}
