package bptree

import (
	"bytes"
	"fmt"

	"go-btindex/pkg/customerrors"
	"go-btindex/pkg/stack"
	"go-btindex/util/helpers"

	"github.com/pkg/errors"
)

type ViolationKind string

const (
	ViolationAddress  ViolationKind = "address"   // child address outside the store
	ViolationShared   ViolationKind = "shared"    // node reachable twice
	ViolationDecode   ViolationKind = "decode"    // block does not decode as a node of this index
	ViolationType     ViolationKind = "type"      // tag not allowed at that depth
	ViolationOrder    ViolationKind = "order"     // keys not strictly ascending
	ViolationRange    ViolationKind = "range"     // key outside the parent's separators
	ViolationShape    ViolationKind = "shape"     // children count is not keys+1
	ViolationEmpty    ViolationKind = "empty"     // interior node below the root without keys
	ViolationDepth    ViolationKind = "depth"     // leaves at different depths
	ViolationFreeList ViolationKind = "free-list" // broken free list
	ViolationLeak     ViolationKind = "leak"      // block neither in the tree nor free
)

// Violation describes one broken invariant found by SanityCheck.
type Violation struct {
	Addr   uint64
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("block %d: %s: %s", v.Addr, v.Kind, v.Detail)
}

type sanityFrame struct {
	addr  uint64
	depth int
	lo    []byte // keys must be greater, nil for no bound
	hi    []byte // keys must be less or equal, nil for no bound
}

// SanityCheck walks the whole tree and the free list and reports every
// structural violation it finds. An error is returned only when a block
// cannot be read from the store.
func (tree *BPlusTree) SanityCheck() ([]Violation, error) {
	tree.mu.RLock()
	defer tree.mu.RUnlock()

	if err := tree.check(); err != nil {
		return nil, err
	}

	s := &sanity{
		tree:      tree,
		count:     tree.store.BlockCount(),
		reachable: map[uint64]bool{},
		free:      map[uint64]bool{},
		leafDepth: -1,
	}

	if err := s.walkTree(); err != nil {
		return nil, err
	}
	if err := s.walkFreeList(); err != nil {
		return nil, err
	}
	s.findLeaks()

	if len(s.violations) > 0 {
		tree.log.Warnf("sanity check found %d violations", len(s.violations))
	}
	return s.violations, nil
}

type sanity struct {
	tree       *BPlusTree
	count      uint64
	reachable  map[uint64]bool
	free       map[uint64]bool
	leafDepth  int
	violations []Violation
}

func (s *sanity) report(addr uint64, kind ViolationKind, format string, args ...interface{}) {
	s.violations = append(s.violations, Violation{Addr: addr, Kind: kind, Detail: fmt.Sprintf(format, args...)})
}

// load reads a node, turning decode failures into violations. n is nil
// when the block could not be used.
func (s *sanity) load(addr uint64) (*node, error) {
	n, err := s.tree.readNode(addr)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, customerrors.ErrInsane) {
		s.report(addr, ViolationDecode, "%v", err)
		return nil, nil
	}
	return nil, err
}

func (s *sanity) walkTree() error {
	frames := stack.New[sanityFrame](16)
	frames.Push(sanityFrame{addr: s.tree.meta.root})

	for !frames.Empty() {
		f, _ := frames.Pop()

		if f.addr == superblockAddr || f.addr >= s.count {
			s.report(f.addr, ViolationAddress, "outside 1..%d", s.count-1)
			continue
		}
		if s.reachable[f.addr] {
			s.report(f.addr, ViolationShared, "reached more than once")
			continue
		}
		s.reachable[f.addr] = true

		n, err := s.load(f.addr)
		if err != nil {
			return err
		}
		if n == nil {
			continue
		}

		if !s.checkType(f, n) {
			continue
		}
		s.checkKeys(f, n)

		if n.isLeaf() {
			if s.leafDepth < 0 {
				s.leafDepth = f.depth
			} else if f.depth != s.leafDepth {
				s.report(f.addr, ViolationDepth, "leaf at depth %d, expected %d", f.depth, s.leafDepth)
			}
			continue
		}

		if len(n.keys) == 0 {
			if f.depth > 0 {
				s.report(f.addr, ViolationEmpty, "interior node has no keys")
			}
			continue
		}
		if len(n.children) != len(n.keys)+1 {
			s.report(f.addr, ViolationShape, "%d keys, %d children", len(n.keys), len(n.children))
			continue
		}

		for i := len(n.children) - 1; i >= 0; i-- {
			child := sanityFrame{addr: n.children[i], depth: f.depth + 1, lo: f.lo, hi: f.hi}
			if i > 0 {
				child.lo = n.keys[i-1]
			}
			if i < len(n.keys) {
				child.hi = n.keys[i]
			}
			frames.Push(child)
		}
	}

	return nil
}

// checkType reports whether the node may be descended into.
func (s *sanity) checkType(f sanityFrame, n *node) bool {
	if f.depth == 0 {
		if n.typ != typeRoot {
			s.report(f.addr, ViolationType, "root is tagged %s", n.typ)
			return n.isInterior() || n.isLeaf()
		}
		return true
	}

	switch n.typ {
	case typeInterior, typeLeaf:
		return true
	case typeRoot:
		s.report(f.addr, ViolationType, "root tag at depth %d", f.depth)
		return true
	}
	s.report(f.addr, ViolationType, "%s block inside the tree", n.typ)
	return false
}

func (s *sanity) checkKeys(f sanityFrame, n *node) {
	for i := 1; i < len(n.keys); i++ {
		if bytes.Compare(n.keys[i-1], n.keys[i]) >= 0 {
			s.report(f.addr, ViolationOrder, "key %d (%s) not above key %d (%s)",
				i, helpers.Render(n.keys[i]), i-1, helpers.Render(n.keys[i-1]))
		}
	}

	for i, k := range n.keys {
		if f.lo != nil && bytes.Compare(k, f.lo) <= 0 {
			s.report(f.addr, ViolationRange, "key %d (%s) not above separator %s", i, helpers.Render(k), helpers.Render(f.lo))
		}
		if f.hi != nil && bytes.Compare(k, f.hi) > 0 {
			s.report(f.addr, ViolationRange, "key %d (%s) above separator %s", i, helpers.Render(k), helpers.Render(f.hi))
		}
	}
}

func (s *sanity) walkFreeList() error {
	for addr := s.tree.meta.freelist; addr != nilAddr; {
		if addr >= s.count {
			s.report(addr, ViolationFreeList, "free list points outside the store")
			return nil
		}
		if s.free[addr] {
			s.report(addr, ViolationFreeList, "free list cycles back to this block")
			return nil
		}
		s.free[addr] = true

		if s.reachable[addr] {
			s.report(addr, ViolationFreeList, "block is both free and in the tree")
		}

		n, err := s.load(addr)
		if err != nil {
			return err
		}
		if n == nil {
			return nil
		}
		if n.typ != typeFree {
			s.report(addr, ViolationFreeList, "free list entry tagged %s", n.typ)
			return nil
		}
		addr = n.ptr
	}
	return nil
}

func (s *sanity) findLeaks() {
	for addr := superblockAddr + 1; addr < s.count; addr++ {
		if !s.reachable[addr] && !s.free[addr] {
			s.report(addr, ViolationLeak, "block is neither in the tree nor free")
		}
	}
}
