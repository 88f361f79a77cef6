package bptree

import (
	"bytes"

	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/stack"
	"go-btindex/util/helpers"

	"github.com/pkg/errors"
)

// Insert adds a new (key, value) pair. Returns ErrConflict if the key is
// already present and ErrNoSpace if the free list cannot hold the blocks
// the insert would need. In both cases the tree is left unchanged.
func (tree *BPlusTree) Insert(key, val []byte) error {
	if err := tree.checkPair(key, val); err != nil {
		return err
	}

	tree.mu.Lock()
	defer tree.mu.Unlock()

	if err := tree.check(); err != nil {
		return err
	}

	return tree.poison(tree.insert(helpers.Copy(key), helpers.Copy(val)))
}

func (tree *BPlusTree) insert(key, val []byte) error {
	root, err := tree.readNode(tree.meta.root)
	if err != nil {
		return err
	}
	if root.typ != typeRoot {
		return errors.Wrapf(customerrors.ErrInsane, "root block %d is tagged %s", tree.meta.root, root.typ)
	}

	if len(root.keys) == 0 {
		return tree.bootstrap(root, key, val)
	}

	path := stack.New[uint64](8)
	addr, n := tree.meta.root, root

	// fullRun counts the full interior nodes directly above the current
	// node. Those are the ones a leaf split cascades through.
	fullRun := 0

	for depth := 0; !n.isLeaf(); depth++ {
		if err := tree.checkDepth(depth); err != nil {
			return err
		}

		idx, found := n.search(key)
		if found {
			return customerrors.ErrConflict
		}

		if len(n.keys) >= tree.interiorCap {
			fullRun++
		} else {
			fullRun = 0
		}
		path.Push(addr)

		addr = n.children[idx]
		if n, err = tree.readNode(addr); err != nil {
			return err
		}

		switch {
		case n.typ == typeInterior && len(n.keys) == 0:
			return errors.Wrapf(customerrors.ErrInsane, "interior block %d has no keys", addr)
		case n.typ != typeInterior && n.typ != typeLeaf:
			return errors.Wrapf(customerrors.ErrInsane, "block %d is tagged %s below the root", addr, n.typ)
		}
	}

	idx, found := n.search(key)
	if found {
		return customerrors.ErrConflict
	}

	if len(n.keys) < tree.leafCap {
		n.insertPair(idx, key, val)
		return tree.writeNode(addr, n)
	}

	need := 1 + fullRun
	if fullRun == path.Size() {
		need++ // root grows
	}
	if err := tree.reserve(need); err != nil {
		return err
	}

	return tree.splitLeaf(addr, n, idx, key, val, path)
}

// bootstrap turns the empty root into a root with one separator and two
// leaves. The left leaf holds the first pair; the right one starts empty
// and receives every larger key.
func (tree *BPlusTree) bootstrap(root *node, key, val []byte) error {
	if err := tree.reserve(2); err != nil {
		return err
	}

	leftAddr, err := tree.allocate()
	if err != nil {
		return err
	}

	rightAddr, err := tree.allocate()
	if err != nil {
		// hand the first block back before giving up
		if werr := tree.writeNode(leftAddr, tree.newNode(typeLeaf)); werr == nil {
			_ = tree.deallocate(leftAddr)
		}
		return err
	}

	left := tree.newNode(typeLeaf)
	left.keys = [][]byte{key}
	left.vals = [][]byte{val}
	right := tree.newNode(typeLeaf)

	if err := tree.writeNode(rightAddr, right); err != nil {
		return err
	}
	if err := tree.writeNode(leftAddr, left); err != nil {
		return err
	}

	root.keys = [][]byte{helpers.Copy(key)}
	root.children = []uint64{leftAddr, rightAddr}
	tree.log.Debugf("bootstrapped root %d with leaves %d and %d", tree.meta.root, leftAddr, rightAddr)
	return tree.writeNode(tree.meta.root, root)
}

// splitLeaf moves the upper half of a full leaf into a new sibling, puts
// the pair on the side it belongs to and hands the last key of the lower
// half to the parent.
func (tree *BPlusTree) splitLeaf(addr uint64, leaf *node, idx int, key, val []byte, path *stack.Stack[uint64]) error {
	sibAddr, err := tree.allocate()
	if err != nil {
		return err
	}

	h := len(leaf.keys) / 2
	sib := tree.newNode(typeLeaf)
	sib.keys = append(make([][]byte, 0, len(leaf.keys)-h+1), leaf.keys[h:]...)
	sib.vals = append(make([][]byte, 0, len(leaf.vals)-h+1), leaf.vals[h:]...)

	promoted := helpers.Copy(leaf.keys[h-1])
	leaf.keys = leaf.keys[:h]
	leaf.vals = leaf.vals[:h]

	if bytes.Compare(key, promoted) < 0 {
		leaf.insertPair(idx, key, val)
	} else {
		sib.insertPair(idx-h, key, val)
	}

	if err := tree.writeNode(sibAddr, sib); err != nil {
		return err
	}
	if err := tree.writeNode(addr, leaf); err != nil {
		return err
	}

	tree.log.Debugf("split leaf %d into %d (%d/%d keys)", addr, sibAddr, len(leaf.keys), len(sib.keys))
	return tree.upsert(sibAddr, promoted, path)
}

// upsert inserts the separator key with child as its right-hand subtree
// into the parent on top of path, splitting full interior nodes up to and
// including the root.
func (tree *BPlusTree) upsert(child uint64, key []byte, path *stack.Stack[uint64]) error {
	for {
		addr, err := path.Pop()
		if err != nil {
			return errors.Wrap(customerrors.ErrInsane, "split ran past the root")
		}

		parent, err := tree.readNode(addr)
		if err != nil {
			return err
		}

		idx, _ := parent.search(key)
		if len(parent.keys) < tree.interiorCap {
			parent.insertChild(idx, key, child)
			return tree.writeNode(addr, parent)
		}

		sibAddr, err := tree.allocate()
		if err != nil {
			return err
		}

		sib, promoted := tree.splitInterior(parent, idx, key, child)

		if parent.typ == typeRoot {
			return tree.growRoot(addr, parent, sibAddr, sib, promoted)
		}

		if err := tree.writeNode(sibAddr, sib); err != nil {
			return err
		}
		if err := tree.writeNode(addr, parent); err != nil {
			return err
		}

		tree.log.Debugf("split interior %d into %d", addr, sibAddr)
		child, key = sibAddr, promoted
	}
}

// splitInterior splits the full node n while placing (key, child) at idx.
// n keeps the lower half, the returned sibling gets the upper half, and the
// key between the two halves is returned for the parent.
func (tree *BPlusTree) splitInterior(n *node, idx int, key []byte, child uint64) (*node, []byte) {
	h := len(n.keys) / 2

	sib := tree.newNode(typeInterior)
	sib.keys = append(make([][]byte, 0, len(n.keys)-h+1), n.keys[h:]...)
	sib.children = append(make([]uint64, 0, len(n.children)-h+1), n.children[h:]...)

	// n.children[h] now leads the sibling; n is left one child short
	// until its last key is promoted.
	n.keys = n.keys[:h]
	n.children = n.children[:h]

	if bytes.Compare(key, n.keys[h-1]) < 0 {
		n.insertChild(idx, key, child)
	} else {
		sib.insertChild(idx-h, key, child)
	}

	last := len(n.keys) - 1
	promoted := n.keys[last]
	n.keys = n.keys[:last]

	return sib, promoted
}

// growRoot puts a new root above the split old root. The old root block
// is kept in place and retagged Interior.
func (tree *BPlusTree) growRoot(oldAddr uint64, old *node, sibAddr uint64, sib *node, promoted []byte) error {
	rootAddr, err := tree.allocate()
	if err != nil {
		return err
	}

	root := tree.newNode(typeRoot)
	root.keys = [][]byte{promoted}
	root.children = []uint64{oldAddr, sibAddr}
	old.typ = typeInterior

	prev := tree.meta.root
	tree.meta.root = rootAddr

	for _, w := range []struct {
		addr uint64
		n    *node
	}{{sibAddr, sib}, {oldAddr, old}, {rootAddr, root}} {
		if err := tree.writeNode(w.addr, w.n); err != nil {
			tree.meta.root = prev
			return err
		}
	}

	if err := tree.writeMeta(); err != nil {
		tree.meta.root = prev
		return err
	}

	tree.log.Debugf("root moved from %d to %d", oldAddr, rootAddr)
	return nil
}
