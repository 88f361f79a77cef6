package bptree

import (
	"bytes"
	"fmt"

	"go-btindex/pkg/customerrors"
	"go-btindex/util/helpers"

	"github.com/pkg/errors"
)

type nodeType uint8

// Zero is left unused so that a block that was never written does not
// decode as a valid node.
const (
	typeUnknown nodeType = iota
	typeSuperblock
	typeRoot
	typeInterior
	typeLeaf
	typeFree
)

func (t nodeType) String() string {
	switch t {
	case typeSuperblock:
		return "Superblock"
	case typeRoot:
		return "Root"
	case typeInterior:
		return "Interior"
	case typeLeaf:
		return "Leaf"
	case typeFree:
		return "Free"
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

const (
	// nilAddr terminates the free list. Block 0 always holds the
	// superblock, so it can never be a free block.
	nilAddr = uint64(0)

	addrSize = 8

	// Note: update nodeHeaderSz if the header layout changes.
	// | type | keySize | valueSize | numKeys | ptr |
	// |  1B  |   2B    |    2B     |   2B    | 8B  |
	nodeHeaderSz = 1 + 2 + 2 + 2 + addrSize

	minLeafCapacity     = 2
	minInteriorCapacity = 4
)

// leafCapacity is the number of (key, value) pairs a leaf block holds.
func leafCapacity(blockSize, keySize, valueSize int) int {
	return helpers.Slots(blockSize-nodeHeaderSz, keySize+valueSize)
}

// interiorCapacity is the number of keys an interior block holds. The
// block also carries one more child address than keys.
func interiorCapacity(blockSize, keySize int) int {
	return helpers.Slots(blockSize-nodeHeaderSz-addrSize, keySize+addrSize)
}

// node is the decoded form of a Root, Interior, Leaf or Free block. It is
// never kept across operations: every operation loads the blocks it needs
// and writes back what it changed.
//
// ptr is shared between node kinds: Root, Interior and Leaf nodes record
// the root address there, Free nodes the address of the next free block.
type node struct {
	typ       nodeType
	blockSize int
	keySize   int
	valueSize int
	ptr       uint64

	keys     [][]byte
	vals     [][]byte // leaf only
	children []uint64 // root and interior only
}

func (n *node) isLeaf() bool { return n.typ == typeLeaf }

func (n *node) isInterior() bool { return n.typ == typeRoot || n.typ == typeInterior }

// search returns the index of the first key that is greater than or equal
// to key and whether that key is equal to it. For interior nodes the index
// is also the child to descend into: an equal separator routes left.
func (n *node) search(key []byte) (idx int, found bool) {
	left, right := 0, len(n.keys)

	for left < right {
		mid := (left + right) / 2
		if bytes.Compare(n.keys[mid], key) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}

	return left, left < len(n.keys) && bytes.Equal(n.keys[left], key)
}

// insertPair inserts the (key, value) pair at idx, shifting the pairs
// from idx onwards one slot to the right.
func (n *node) insertPair(idx int, key, val []byte) {
	n.keys = append(n.keys, nil)
	copy(n.keys[idx+1:], n.keys[idx:])
	n.keys[idx] = key

	n.vals = append(n.vals, nil)
	copy(n.vals[idx+1:], n.vals[idx:])
	n.vals[idx] = val
}

// insertChild inserts key at idx and child right after it, so that child
// becomes the subtree holding keys greater than key.
func (n *node) insertChild(idx int, key []byte, child uint64) {
	n.keys = append(n.keys, nil)
	copy(n.keys[idx+1:], n.keys[idx:])
	n.keys[idx] = key

	n.children = append(n.children, 0)
	copy(n.children[idx+2:], n.children[idx+1:])
	n.children[idx+1] = child
}

func (n *node) String() string {
	s := "{"
	for _, k := range n.keys {
		s += fmt.Sprintf("'%s' ", helpers.Render(k))
	}
	s += "} "
	s += fmt.Sprintf("[type=%s, size=%d, ptr=%d]", n.typ, len(n.keys), n.ptr)
	return s
}

func (n *node) MarshalBinary() ([]byte, error) {
	if n.blockSize < nodeHeaderSz {
		return nil, errors.Errorf("block size %d smaller than node header", n.blockSize)
	}
	buf := make([]byte, n.blockSize)

	buf[0] = uint8(n.typ)
	bin.PutUint16(buf[1:3], uint16(n.keySize))
	bin.PutUint16(buf[3:5], uint16(n.valueSize))
	bin.PutUint16(buf[5:7], uint16(len(n.keys)))
	bin.PutUint64(buf[7:15], n.ptr)
	offset := nodeHeaderSz

	switch n.typ {
	case typeLeaf:
		if len(n.keys) > leafCapacity(n.blockSize, n.keySize, n.valueSize) {
			return nil, errors.Errorf("leaf with %d keys overflows block", len(n.keys))
		}

		for i := range n.keys {
			copy(buf[offset:offset+n.keySize], n.keys[i])
			offset += n.keySize

			copy(buf[offset:offset+n.valueSize], n.vals[i])
			offset += n.valueSize
		}
	case typeRoot, typeInterior:
		if len(n.keys) > interiorCapacity(n.blockSize, n.keySize) {
			return nil, errors.Errorf("interior node with %d keys overflows block", len(n.keys))
		}
		if len(n.keys) == 0 {
			break
		}
		if len(n.children) != len(n.keys)+1 {
			return nil, errors.Errorf("interior node with %d keys has %d children", len(n.keys), len(n.children))
		}

		// write the 0th pointer
		bin.PutUint64(buf[offset:offset+addrSize], n.children[0])
		offset += addrSize

		for i := range n.keys {
			copy(buf[offset:offset+n.keySize], n.keys[i])
			offset += n.keySize

			bin.PutUint64(buf[offset:offset+addrSize], n.children[i+1])
			offset += addrSize
		}
	}

	return buf, nil
}

func (n *node) UnmarshalBinary(d []byte) error {
	if n == nil {
		return errors.New("cannot unmarshal into nil node")
	}
	if len(d) < nodeHeaderSz {
		return errors.New("in-sufficient data for unmarshal")
	}

	n.typ = nodeType(d[0])
	n.blockSize = len(d)
	n.keySize = int(bin.Uint16(d[1:3]))
	n.valueSize = int(bin.Uint16(d[3:5]))
	numKeys := int(bin.Uint16(d[5:7]))
	n.ptr = bin.Uint64(d[7:15])
	n.keys, n.vals, n.children = nil, nil, nil
	offset := nodeHeaderSz

	switch n.typ {
	case typeLeaf:
		if numKeys > leafCapacity(n.blockSize, n.keySize, n.valueSize) {
			return errors.Wrapf(customerrors.ErrInsane, "leaf claims %d keys", numKeys)
		}

		n.keys = make([][]byte, 0, numKeys+1)
		n.vals = make([][]byte, 0, numKeys+1)
		for i := 0; i < numKeys; i++ {
			n.keys = append(n.keys, helpers.Copy(d[offset:offset+n.keySize]))
			offset += n.keySize

			n.vals = append(n.vals, helpers.Copy(d[offset:offset+n.valueSize]))
			offset += n.valueSize
		}
	case typeRoot, typeInterior:
		if numKeys > interiorCapacity(n.blockSize, n.keySize) {
			return errors.Wrapf(customerrors.ErrInsane, "interior node claims %d keys", numKeys)
		}
		if numKeys == 0 {
			break
		}

		n.keys = make([][]byte, 0, numKeys+1)
		n.children = make([]uint64, 0, numKeys+2)

		// read the left most child pointer
		n.children = append(n.children, bin.Uint64(d[offset:offset+addrSize]))
		offset += addrSize

		for i := 0; i < numKeys; i++ {
			n.keys = append(n.keys, helpers.Copy(d[offset:offset+n.keySize]))
			offset += n.keySize

			n.children = append(n.children, bin.Uint64(d[offset:offset+addrSize]))
			offset += addrSize
		}
	}

	return nil
}
