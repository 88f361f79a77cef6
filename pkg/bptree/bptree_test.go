package bptree

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"go-btindex/pkg/cache"
	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/pager"
	"go-btindex/util/helpers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	testKeySize   = 8
	testValueSize = 16

	// leaf capacity 4, interior capacity 5
	testBlockSize = nodeHeaderSz + 4*(testKeySize+testValueSize)
)

var testOptions = &Options{KeySize: testKeySize, ValueSize: testValueSize, Unique: true}

func newTestTree(t *testing.T, blocks uint64) (*BPlusTree, *pager.Memory) {
	t.Helper()

	mem := pager.NewMemory(testBlockSize, blocks)
	tree, err := New(mem, testOptions)
	require.NoError(t, err)
	require.NoError(t, tree.Format())
	return tree, mem
}

// testKey encodes i big endian so that byte order matches numeric order.
func testKey(i uint64) []byte {
	k := make([]byte, testKeySize)
	binary.BigEndian.PutUint64(k, i)
	return k
}

func testValue(i uint64) []byte {
	v, _ := helpers.Pad([]byte(fmt.Sprintf("value-%d", i)), testValueSize)
	return v
}

func insertAll(t *testing.T, tree *BPlusTree, keys ...uint64) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, tree.Insert(testKey(k), testValue(k)), "insert %d", k)
	}
}

func requireFound(t *testing.T, tree *BPlusTree, keys ...uint64) {
	t.Helper()
	for _, k := range keys {
		val, err := tree.Lookup(testKey(k))
		require.NoError(t, err, "lookup %d", k)
		require.Equal(t, testValue(k), val, "lookup %d", k)
	}
}

func requireSane(t *testing.T, tree *BPlusTree) {
	t.Helper()
	violations, err := tree.SanityCheck()
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestNew(t *testing.T) {
	tree, err := New(pager.NewMemory(testBlockSize, 8), nil)
	require.NoError(t, err)
	require.Equal(t, defaultOptions, tree.opts)

	_, err = New(nil, testOptions)
	require.Error(t, err)

	_, err = New(pager.NewMemory(testBlockSize, 8), &Options{KeySize: 0, ValueSize: 8})
	require.ErrorIs(t, err, customerrors.ErrKeySize)

	_, err = New(pager.NewMemory(testBlockSize, 8), &Options{KeySize: 8, ValueSize: -1})
	require.ErrorIs(t, err, customerrors.ErrValueSize)

	// room for a single pair only
	_, err = New(pager.NewMemory(40, 8), testOptions)
	require.ErrorIs(t, err, customerrors.ErrBlockTooSmall)
}

func TestBPlusTree_NotMounted(t *testing.T) {
	tree, err := New(pager.NewMemory(testBlockSize, 8), testOptions)
	require.NoError(t, err)

	_, err = tree.Lookup(testKey(1))
	require.ErrorIs(t, err, customerrors.ErrNotMounted)
	require.ErrorIs(t, tree.Insert(testKey(1), testValue(1)), customerrors.ErrNotMounted)
	require.ErrorIs(t, tree.Unmount(), customerrors.ErrNotMounted)
}

func TestBPlusTree_Format(t *testing.T) {
	tree, mem := newTestTree(t, 16)

	_, err := tree.Lookup(testKey(42))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)
	require.ErrorIs(t, tree.Update(testKey(42), testValue(42)), customerrors.ErrKeyNotFound)

	require.Equal(t, uint64(1), tree.Root())
	require.True(t, tree.IsUniq())
	require.NotEqual(t, uuid.Nil, tree.FormatID())

	st, err := tree.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, st.Height)
	require.Equal(t, 14, st.FreeBlocks)
	require.Equal(t, 0, st.Keys)

	require.True(t, mem.Allocated(0))
	require.True(t, mem.Allocated(1))
	require.False(t, mem.Allocated(2))

	requireSane(t, tree)

	small, err := New(pager.NewMemory(testBlockSize, 1), testOptions)
	require.NoError(t, err)
	require.Error(t, small.Format())
}

func TestBPlusTree_InsertLookup(t *testing.T) {
	tree, _ := newTestTree(t, 1024)

	keys := make([]uint64, 500)
	for i := range keys {
		keys[i] = uint64(i*3 + 1)
	}
	rand.New(rand.NewSource(7)).Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	insertAll(t, tree, keys...)
	requireFound(t, tree, keys...)

	for _, missing := range []uint64{0, 2, 3, 1501, 1 << 40} {
		_, err := tree.Lookup(testKey(missing))
		require.ErrorIs(t, err, customerrors.ErrKeyNotFound, "lookup %d", missing)
	}

	st, err := tree.Stats()
	require.NoError(t, err)
	require.Equal(t, len(keys), st.Keys)
	require.Equal(t, uint64(st.InteriorNodes+st.LeafNodes+st.FreeBlocks+1), st.BlockCount)

	requireSane(t, tree)
}

func TestBPlusTree_Conflict(t *testing.T) {
	tree, mem := newTestTree(t, 64)
	insertAll(t, tree, 10, 20, 30, 40, 50, 60, 70, 80)

	before := mem.Snapshot()

	// 10 and 50 are separators in the root as well
	for _, k := range []uint64{10, 50, 80} {
		err := tree.Insert(testKey(k), testValue(k+1))
		require.Equal(t, customerrors.ErrConflict, err, "insert %d", k)
	}

	require.Equal(t, before, mem.Snapshot())
	requireFound(t, tree, 10, 20, 30, 40, 50, 60, 70, 80)
}

func TestBPlusTree_Update(t *testing.T) {
	tree, mem := newTestTree(t, 64)
	insertAll(t, tree, 5, 15, 25, 35, 45, 55)

	before, err := tree.Stats()
	require.NoError(t, err)

	newVal, _ := helpers.Pad([]byte("updated"), testValueSize)
	require.NoError(t, tree.Update(testKey(25), newVal))

	got, err := tree.Lookup(testKey(25))
	require.NoError(t, err)
	require.Equal(t, newVal, got)
	requireFound(t, tree, 5, 15, 35, 45, 55)

	after, err := tree.Stats()
	require.NoError(t, err)
	require.Equal(t, before, after)

	snapshot := mem.Snapshot()
	require.ErrorIs(t, tree.Update(testKey(26), newVal), customerrors.ErrKeyNotFound)
	require.Equal(t, snapshot, mem.Snapshot())
}

func TestBPlusTree_PayloadSize(t *testing.T) {
	tree, _ := newTestTree(t, 16)

	require.ErrorIs(t, tree.Insert([]byte("short"), testValue(1)), customerrors.ErrKeySize)
	require.ErrorIs(t, tree.Insert(testKey(1), []byte("short")), customerrors.ErrValueSize)
	require.ErrorIs(t, tree.Update(testKey(1), make([]byte, testValueSize+1)), customerrors.ErrValueSize)

	_, err := tree.Lookup(make([]byte, testKeySize+1))
	require.ErrorIs(t, err, customerrors.ErrKeySize)
}

func TestBPlusTree_Delete(t *testing.T) {
	tree, _ := newTestTree(t, 16)
	insertAll(t, tree, 1)

	require.ErrorIs(t, tree.Delete(testKey(1)), customerrors.ErrUnimplemented)
	requireFound(t, tree, 1)
}

func TestBPlusTree_MountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	store, err := pager.Open(path, &pager.Options{BlockSize: testBlockSize, BlockCount: 128})
	require.NoError(t, err)

	tree, err := New(store, testOptions)
	require.NoError(t, err)
	require.NoError(t, tree.Format())

	keys := make([]uint64, 60)
	for i := range keys {
		keys[i] = uint64(100 - i)
	}
	insertAll(t, tree, keys...)

	id, root := tree.FormatID(), tree.Root()
	require.NoError(t, tree.Unmount())
	require.NoError(t, store.Close())

	// reopen with the block count taken from the file size
	store, err = pager.Open(path, &pager.Options{BlockSize: testBlockSize})
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, uint64(128), store.BlockCount())

	tree, err = New(cache.New(store, 16), testOptions)
	require.NoError(t, err)
	require.NoError(t, tree.Mount())

	require.Equal(t, id, tree.FormatID())
	require.Equal(t, root, tree.Root())
	requireFound(t, tree, keys...)
	requireSane(t, tree)

	other, err := New(store, &Options{KeySize: testKeySize, ValueSize: 8})
	require.NoError(t, err)
	require.ErrorIs(t, other.Mount(), customerrors.ErrGeometry)
}

func TestBPlusTree_MountUnformatted(t *testing.T) {
	tree, err := New(pager.NewMemory(testBlockSize, 8), testOptions)
	require.NoError(t, err)
	require.ErrorIs(t, tree.Mount(), customerrors.ErrBadSuperblock)
}

func TestBPlusTree_Concurrent(t *testing.T) {
	tree, _ := newTestTree(t, 1024)

	const workers, perWorker = 4, 100

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				k := uint64(i*workers + w)
				if err := tree.Insert(testKey(k), testValue(k)); err != nil {
					return err
				}
				if _, err := tree.Lookup(testKey(k)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for k := uint64(0); k < workers*perWorker; k++ {
		requireFound(t, tree, k)
	}
	requireSane(t, tree)
}

func TestBPlusTree_Poisoned(t *testing.T) {
	tree, mem := newTestTree(t, 16)
	insertAll(t, tree, 1)

	// retag the root as a free block
	d, err := mem.ReadBlock(tree.Root())
	require.NoError(t, err)
	d[0] = uint8(typeFree)
	require.NoError(t, mem.WriteBlock(tree.Root(), d))

	_, err = tree.Lookup(testKey(1))
	require.ErrorIs(t, err, customerrors.ErrInsane)

	// every later call fails, even ones that would not touch the root
	_, err = tree.AllocateNode()
	require.ErrorIs(t, err, customerrors.ErrInsane)

	// formatting again clears the condition
	require.NoError(t, tree.Format())
	_, err = tree.Lookup(testKey(1))
	require.ErrorIs(t, err, customerrors.ErrKeyNotFound)
}
