package bptree

import (
	"fmt"

	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/stack"

	"github.com/pkg/errors"
)

// Stats summarizes the shape of the tree.
type Stats struct {
	Height           int // levels including the root, 1 for an empty tree
	InteriorNodes    int // root included
	LeafNodes        int
	Keys             int // pairs stored in leaves
	Separators       int // keys stored in the root and interior nodes
	FreeBlocks       int
	LeafCapacity     int
	InteriorCapacity int
	BlockCount       uint64
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"height=%d interior=%d leaves=%d keys=%d separators=%d free=%d/%d leafCap=%d interiorCap=%d",
		s.Height, s.InteriorNodes, s.LeafNodes, s.Keys, s.Separators,
		s.FreeBlocks, s.BlockCount, s.LeafCapacity, s.InteriorCapacity,
	)
}

// Stats walks the tree and the free list and counts what it finds.
func (tree *BPlusTree) Stats() (Stats, error) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if err := tree.check(); err != nil {
		return Stats{}, err
	}

	st, err := tree.stats()
	return st, tree.poison(err)
}

func (tree *BPlusTree) stats() (Stats, error) {
	st := Stats{
		LeafCapacity:     tree.leafCap,
		InteriorCapacity: tree.interiorCap,
		BlockCount:       tree.store.BlockCount(),
	}

	type frame struct {
		addr  uint64
		level int
	}

	pending := stack.New[frame](16)
	pending.Push(frame{addr: tree.meta.root, level: 1})

	for visited := uint64(0); !pending.Empty(); visited++ {
		if visited >= st.BlockCount {
			return st, errors.Wrap(customerrors.ErrInsane, "tree has more nodes than blocks")
		}

		f, _ := pending.Pop()
		n, err := tree.readNode(f.addr)
		if err != nil {
			return st, err
		}

		if f.level > st.Height {
			st.Height = f.level
		}

		switch n.typ {
		case typeRoot, typeInterior:
			st.InteriorNodes++
			st.Separators += len(n.keys)
			for _, child := range n.children {
				pending.Push(frame{addr: child, level: f.level + 1})
			}
		case typeLeaf:
			st.LeafNodes++
			st.Keys += len(n.keys)
		default:
			return st, errors.Wrapf(customerrors.ErrInsane, "block %d is tagged %s inside the tree", f.addr, n.typ)
		}
	}

	for addr := tree.meta.freelist; addr != nilAddr; st.FreeBlocks++ {
		if uint64(st.FreeBlocks) >= st.BlockCount {
			return st, errors.Wrap(customerrors.ErrInvariant, "free list longer than the store")
		}

		n, err := tree.readFree(addr)
		if err != nil {
			return st, err
		}
		addr = n.ptr
	}

	return st, nil
}
