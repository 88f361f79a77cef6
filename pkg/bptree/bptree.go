// Package bptree implements an on-disk B+ tree index over a fixed-size
// block store. Keys and values are fixed-size byte strings; every node
// occupies exactly one block and unused blocks are chained into a free
// list anchored in the superblock.
package bptree

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/pager"
	"go-btindex/util/helpers"
	"go-btindex/util/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.LittleEndian

type operation int

const (
	opLookup operation = iota
	opUpdate
)

// New returns a B+ tree over the given store. The store is not touched:
// call Format to initialize it or Mount to open an existing index. If nil
// options are provided, defaultOptions will be used.
func New(store pager.Store, opts *Options) (*BPlusTree, error) {
	if opts == nil {
		opts = &defaultOptions
	}
	if store == nil {
		return nil, errors.New("nil block store")
	}

	if opts.KeySize <= 0 || opts.KeySize > 0xFFFF {
		return nil, errors.Wrapf(customerrors.ErrKeySize, "key size %d", opts.KeySize)
	}
	if opts.ValueSize <= 0 || opts.ValueSize > 0xFFFF {
		return nil, errors.Wrapf(customerrors.ErrValueSize, "value size %d", opts.ValueSize)
	}

	blockSize := store.BlockSize()
	tree := &BPlusTree{
		mu:          &sync.RWMutex{},
		store:       store,
		opts:        *opts,
		leafCap:     leafCapacity(blockSize, opts.KeySize, opts.ValueSize),
		interiorCap: interiorCapacity(blockSize, opts.KeySize),
		log:         logger.For("bptree"),
	}

	if blockSize < metadataSize || tree.leafCap < minLeafCapacity || tree.interiorCap < minInteriorCapacity {
		return nil, errors.Wrapf(
			customerrors.ErrBlockTooSmall,
			"block size %d gives leaf capacity %d and interior capacity %d",
			blockSize, tree.leafCap, tree.interiorCap,
		)
	}

	return tree, nil
}

// BPlusTree represents an on-disk B+ tree. Each node is mapped to a single
// block of the store. Capacities are derived from the block size and the
// key and value sizes, and stay fixed for the lifetime of the index.
type BPlusTree struct {
	mu    *sync.RWMutex
	store pager.Store
	opts  Options
	log   *logrus.Entry

	leafCap     int
	interiorCap int

	// tree state
	meta    *metadata
	mounted bool

	// fatal holds the first ErrInsane/ErrInvariant seen. Once set the
	// tree refuses every further operation.
	fatalMu sync.Mutex
	fatal   error
}

// Format writes a fresh index to the store: the superblock at block 0, an
// empty root at block 1 and every other block chained into the free list
// in ascending order. The formatted index is left mounted.
func (tree *BPlusTree) Format() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	count := tree.store.BlockCount()
	if count < 2 {
		return errors.Errorf("store needs at least 2 blocks, has %d", count)
	}

	meta := &metadata{
		magic:     magic,
		version:   version,
		keySize:   uint16(tree.opts.KeySize),
		valueSize: uint16(tree.opts.ValueSize),
		blockSize: uint32(tree.store.BlockSize()),
		root:      superblockAddr + 1,
		freelist:  nilAddr,
		formatID:  uuid.New(),
	}
	if count > 2 {
		meta.freelist = superblockAddr + 2
	}
	helpers.SetBit(&meta.flags, uniquenessBit, tree.opts.Unique)

	tree.meta = meta
	tree.mounted = false

	tree.store.NotifyAllocate(superblockAddr)
	if err := tree.writeMetaFrom(meta); err != nil {
		return err
	}

	root := tree.newNode(typeRoot)
	tree.store.NotifyAllocate(meta.root)
	if err := tree.writeNode(meta.root, root); err != nil {
		return err
	}

	for addr := superblockAddr + 2; addr < count; addr++ {
		free := tree.newNode(typeFree)
		if addr+1 < count {
			free.ptr = addr + 1
		}
		if err := tree.writeNode(addr, free); err != nil {
			return err
		}
	}

	tree.fatalMu.Lock()
	tree.fatal = nil
	tree.fatalMu.Unlock()

	tree.mounted = true
	tree.log.Infof("formatted %d blocks (leaf capacity %d, interior capacity %d, id %s)",
		count, tree.leafCap, tree.interiorCap, meta.formatID)
	return nil
}

// Mount loads the superblock of a formatted store. It must be called
// before any other operation unless the index was just formatted.
func (tree *BPlusTree) Mount() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	d, err := tree.store.ReadBlock(superblockAddr)
	if err != nil {
		return errors.Wrap(err, "failed to read superblock")
	}

	meta := &metadata{}
	if err := meta.UnmarshalBinary(d); err != nil {
		return errors.Wrap(err, "failed to read meta while mounting")
	}

	if int(meta.keySize) != tree.opts.KeySize ||
		int(meta.valueSize) != tree.opts.ValueSize ||
		int(meta.blockSize) != tree.store.BlockSize() {
		return errors.Wrapf(
			customerrors.ErrGeometry,
			"on disk key=%d value=%d block=%d, opened with key=%d value=%d block=%d",
			meta.keySize, meta.valueSize, meta.blockSize,
			tree.opts.KeySize, tree.opts.ValueSize, tree.store.BlockSize(),
		)
	}

	count := tree.store.BlockCount()
	if meta.root == superblockAddr || meta.root >= count || meta.freelist >= count {
		return errors.Wrapf(customerrors.ErrBadSuperblock, "root %d, free list %d, %d blocks", meta.root, meta.freelist, count)
	}

	tree.meta = meta
	tree.mounted = true
	tree.log.Infof("mounted index %s (root %d)", meta.formatID, meta.root)
	return nil
}

// Unmount writes the superblock back. Nodes are written by the operations
// that change them, so there is nothing else to flush.
func (tree *BPlusTree) Unmount() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if !tree.mounted {
		return customerrors.ErrNotMounted
	}

	if err := tree.writeMeta(); err != nil {
		return err
	}

	tree.mounted = false
	tree.log.Infof("unmounted index %s", tree.meta.formatID)
	return nil
}

// Lookup fetches the value associated with the given key. Returns
// ErrKeyNotFound if the key is not present.
func (tree *BPlusTree) Lookup(key []byte) ([]byte, error) {
	if len(key) != tree.opts.KeySize {
		return nil, errors.Wrapf(customerrors.ErrKeySize, "got %d bytes, want %d", len(key), tree.opts.KeySize)
	}

	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if err := tree.check(); err != nil {
		return nil, err
	}

	val, err := tree.lookupOrUpdate(opLookup, key, nil)
	return val, tree.poison(err)
}

// Update overwrites the value of an existing key. Returns ErrKeyNotFound
// if the key is not present; the tree is not modified in that case.
func (tree *BPlusTree) Update(key, val []byte) error {
	if err := tree.checkPair(key, val); err != nil {
		return err
	}

	tree.mu.Lock()
	defer tree.mu.Unlock()

	if err := tree.check(); err != nil {
		return err
	}

	_, err := tree.lookupOrUpdate(opUpdate, key, val)
	return tree.poison(err)
}

// Delete is not supported by this index.
func (tree *BPlusTree) Delete(key []byte) error {
	return errors.Wrap(customerrors.ErrUnimplemented, "delete")
}

// LeafCapacity returns the number of pairs a leaf holds.
func (tree *BPlusTree) LeafCapacity() int { return tree.leafCap }

// InteriorCapacity returns the number of keys an interior node holds.
func (tree *BPlusTree) InteriorCapacity() int { return tree.interiorCap }

// Root returns the current root address.
func (tree *BPlusTree) Root() uint64 {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.meta == nil {
		return nilAddr
	}
	return tree.meta.root
}

// FormatID returns the identity assigned to the index when it was
// formatted.
func (tree *BPlusTree) FormatID() uuid.UUID {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.meta == nil {
		return uuid.Nil
	}
	return tree.meta.formatID
}

// IsUniq reports the unique flag recorded at format time.
func (tree *BPlusTree) IsUniq() bool {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if tree.meta == nil {
		return tree.opts.Unique
	}
	return helpers.GetBit(tree.meta.flags, uniquenessBit)
}

func (tree *BPlusTree) String() string {
	return fmt.Sprintf(
		"BPlusTree{root=%d, blocks=%d, leafCap=%d, interiorCap=%d}",
		tree.Root(), tree.store.BlockCount(), tree.leafCap, tree.interiorCap,
	)
}

// lookupOrUpdate descends from the root to the leaf that may hold key. In
// opUpdate mode the matching value is replaced by val and the leaf written
// back.
func (tree *BPlusTree) lookupOrUpdate(op operation, key, val []byte) ([]byte, error) {
	addr := tree.meta.root

	for depth := 0; ; depth++ {
		if err := tree.checkDepth(depth); err != nil {
			return nil, err
		}

		n, err := tree.readNode(addr)
		if err != nil {
			return nil, err
		}

		switch n.typ {
		case typeRoot, typeInterior:
			if len(n.keys) == 0 {
				// no keys at all on this node, so nowhere to go
				return nil, customerrors.ErrKeyNotFound
			}
			idx, _ := n.search(key)
			addr = n.children[idx]

		case typeLeaf:
			idx, found := n.search(key)
			if !found {
				return nil, customerrors.ErrKeyNotFound
			}

			if op == opLookup {
				return append([]byte(nil), n.vals[idx]...), nil
			}

			n.vals[idx] = append([]byte(nil), val...)
			return nil, tree.writeNode(addr, n)

		default:
			return nil, errors.Wrapf(customerrors.ErrInsane, "block %d is tagged %s during descent", addr, n.typ)
		}
	}
}

// checkDepth guards descents against cycles in a corrupted store.
func (tree *BPlusTree) checkDepth(depth int) error {
	if uint64(depth) >= tree.store.BlockCount() {
		return errors.Wrapf(customerrors.ErrInsane, "descent deeper than %d blocks", tree.store.BlockCount())
	}
	return nil
}

func (tree *BPlusTree) newNode(t nodeType) *node {
	return &node{
		typ:       t,
		blockSize: tree.store.BlockSize(),
		keySize:   tree.opts.KeySize,
		valueSize: tree.opts.ValueSize,
	}
}

// readNode loads and decodes the block at addr. Tree nodes whose header
// disagrees with the index geometry are reported as ErrInsane.
func (tree *BPlusTree) readNode(addr uint64) (*node, error) {
	if addr == superblockAddr || addr >= tree.store.BlockCount() {
		return nil, errors.Wrapf(customerrors.ErrInsane, "node address %d out of range", addr)
	}

	d, err := tree.store.ReadBlock(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read block %d", addr)
	}

	n := &node{}
	if err := n.UnmarshalBinary(d); err != nil {
		return nil, errors.Wrapf(err, "failed to decode block %d", addr)
	}

	if (n.isInterior() || n.isLeaf()) &&
		(n.keySize != tree.opts.KeySize || n.valueSize != tree.opts.ValueSize) {
		return nil, errors.Wrapf(
			customerrors.ErrInsane,
			"block %d has key size %d and value size %d", addr, n.keySize, n.valueSize,
		)
	}

	return n, nil
}

// writeNode encodes n and writes it to addr. Root, Interior and Leaf nodes
// record the current root address in their pointer field.
func (tree *BPlusTree) writeNode(addr uint64, n *node) error {
	if n.typ != typeFree && tree.meta != nil {
		n.ptr = tree.meta.root
	}

	d, err := n.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "failed to encode block %d", addr)
	}

	return errors.Wrapf(tree.store.WriteBlock(addr, d), "failed to write block %d", addr)
}

func (tree *BPlusTree) writeMeta() error {
	return tree.writeMetaFrom(tree.meta)
}

func (tree *BPlusTree) writeMetaFrom(meta *metadata) error {
	d, err := meta.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "failed to encode superblock")
	}
	return errors.Wrap(tree.store.WriteBlock(superblockAddr, d), "failed to write superblock")
}

// check returns the error that prevents the tree from serving requests.
func (tree *BPlusTree) check() error {
	tree.fatalMu.Lock()
	fatal := tree.fatal
	tree.fatalMu.Unlock()

	if fatal != nil {
		return fatal
	}
	if !tree.mounted {
		return customerrors.ErrNotMounted
	}
	return nil
}

func (tree *BPlusTree) checkPair(key, val []byte) error {
	if len(key) != tree.opts.KeySize {
		return errors.Wrapf(customerrors.ErrKeySize, "got %d bytes, want %d", len(key), tree.opts.KeySize)
	}
	if len(val) != tree.opts.ValueSize {
		return errors.Wrapf(customerrors.ErrValueSize, "got %d bytes, want %d", len(val), tree.opts.ValueSize)
	}
	return nil
}

// poison records err as the tree's fatal error if it is one, and returns
// err unchanged.
func (tree *BPlusTree) poison(err error) error {
	if !customerrors.IsFatal(err) {
		return err
	}

	tree.fatalMu.Lock()
	defer tree.fatalMu.Unlock()

	if tree.fatal == nil {
		tree.fatal = err
		tree.log.Errorf("index disabled: %v", err)
	}
	return err
}
