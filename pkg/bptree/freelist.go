package bptree

import (
	"go-btindex/pkg/customerrors"

	"github.com/pkg/errors"
)

// AllocateNode takes the head block off the free list and returns its
// address. Returns ErrNoSpace when the free list is empty. The block is
// zeroed so that it no longer carries the Free tag.
func (tree *BPlusTree) AllocateNode() (uint64, error) {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if err := tree.check(); err != nil {
		return nilAddr, err
	}

	addr, err := tree.allocate()
	if err != nil {
		return nilAddr, tree.poison(err)
	}

	if err := tree.store.WriteBlock(addr, make([]byte, tree.store.BlockSize())); err != nil {
		return nilAddr, errors.Wrapf(err, "failed to clear block %d", addr)
	}
	return addr, nil
}

// DeallocateNode pushes the block at addr onto the free list. The next
// AllocateNode call returns addr again.
func (tree *BPlusTree) DeallocateNode(addr uint64) error {
	tree.mu.Lock()
	defer tree.mu.Unlock()

	if err := tree.check(); err != nil {
		return err
	}

	return tree.poison(tree.deallocate(addr))
}

// allocate pops the free list head. The popped block must be tagged Free;
// anything else means the free list is corrupted. tree.mu must be held.
func (tree *BPlusTree) allocate() (uint64, error) {
	addr := tree.meta.freelist
	if addr == nilAddr {
		return nilAddr, customerrors.ErrNoSpace
	}

	n, err := tree.readFree(addr)
	if err != nil {
		return nilAddr, err
	}

	tree.meta.freelist = n.ptr
	if err := tree.writeMeta(); err != nil {
		tree.meta.freelist = addr
		return nilAddr, err
	}

	tree.store.NotifyAllocate(addr)
	tree.log.Debugf("allocated block %d", addr)
	return addr, nil
}

// deallocate retags the block at addr as Free and makes it the new free
// list head. tree.mu must be held.
func (tree *BPlusTree) deallocate(addr uint64) error {
	if addr == superblockAddr || addr >= tree.store.BlockCount() {
		return errors.Wrapf(customerrors.ErrInvariant, "block %d cannot be freed", addr)
	}
	if addr == tree.meta.root {
		return errors.Wrapf(customerrors.ErrInvariant, "cannot free the root block %d", addr)
	}

	n, err := tree.readNode(addr)
	if err != nil {
		return err
	}
	if n.typ == typeFree {
		return errors.Wrapf(customerrors.ErrInvariant, "block %d is already free", addr)
	}

	free := tree.newNode(typeFree)
	free.ptr = tree.meta.freelist
	if err := tree.writeNode(addr, free); err != nil {
		return err
	}

	head := tree.meta.freelist
	tree.meta.freelist = addr
	if err := tree.writeMeta(); err != nil {
		tree.meta.freelist = head
		return err
	}

	tree.store.NotifyDeallocate(addr)
	tree.log.Debugf("released block %d", addr)
	return nil
}

// reserve makes sure the free list holds at least n blocks, so that a
// structural change needing n allocations cannot run out of space half way.
func (tree *BPlusTree) reserve(n int) error {
	addr := tree.meta.freelist
	for i := 0; i < n; i++ {
		if addr == nilAddr {
			return errors.Wrapf(customerrors.ErrNoSpace, "need %d free blocks, have %d", n, i)
		}

		free, err := tree.readFree(addr)
		if err != nil {
			return err
		}
		addr = free.ptr
	}
	return nil
}

func (tree *BPlusTree) readFree(addr uint64) (*node, error) {
	n, err := tree.readNode(addr)
	if err != nil {
		if errors.Is(err, customerrors.ErrInsane) {
			return nil, errors.Wrapf(customerrors.ErrInvariant, "free list entry %d: %v", addr, err)
		}
		return nil, err
	}

	if n.typ != typeFree {
		return nil, errors.Wrapf(customerrors.ErrInvariant, "free list entry %d is tagged %s", addr, n.typ)
	}
	return n, nil
}
