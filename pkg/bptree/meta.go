package bptree

import (
	"go-btindex/pkg/customerrors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	magic   = 0xB7EE
	version = uint8(0x1)

	superblockAddr = uint64(0)

	// Note: update metadataSize if the layout below changes.
	// | type | magic | version | flags | keySize | valueSize | blockSize | root | freelist | formatID |
	// |  1B  |  2B   |   1B    |  1B   |   2B    |    2B     |    4B     |  8B  |    8B    |   16B    |
	metadataSize = 45

	uniquenessBit = 0
)

// metadata is the superblock. A copy lives in memory while the index is
// mounted and is written back whenever the root or the free list head
// moves.
type metadata struct {
	magic     uint16    // magic marker to identify the index
	version   uint8     // version of implementation
	flags     uint8     // bit 0: unique flag given at format time
	keySize   uint16    // fixed key size
	valueSize uint16    // fixed value size
	blockSize uint32    // block size used to format
	root      uint64    // address of the root node
	freelist  uint64    // head of the free list, nilAddr when empty
	formatID  uuid.UUID // identity assigned when formatted
}

func (m *metadata) MarshalBinary() ([]byte, error) {
	if int(m.blockSize) < metadataSize {
		return nil, errors.Errorf("block size %d cannot hold the superblock", m.blockSize)
	}

	buf := make([]byte, m.blockSize)
	buf[0] = uint8(typeSuperblock)
	bin.PutUint16(buf[1:3], m.magic)
	buf[3] = m.version
	buf[4] = m.flags
	bin.PutUint16(buf[5:7], m.keySize)
	bin.PutUint16(buf[7:9], m.valueSize)
	bin.PutUint32(buf[9:13], m.blockSize)
	bin.PutUint64(buf[13:21], m.root)
	bin.PutUint64(buf[21:29], m.freelist)
	copy(buf[29:45], m.formatID[:])

	return buf, nil
}

func (m *metadata) UnmarshalBinary(d []byte) error {
	if len(d) < metadataSize {
		return errors.New("in-sufficient data for unmarshal")
	} else if m == nil {
		return errors.New("cannot unmarshal into nil")
	}

	if nodeType(d[0]) != typeSuperblock {
		return errors.Wrapf(customerrors.ErrBadSuperblock, "block tagged %s", nodeType(d[0]))
	}

	m.magic = bin.Uint16(d[1:3])
	m.version = d[3]
	m.flags = d[4]
	m.keySize = bin.Uint16(d[5:7])
	m.valueSize = bin.Uint16(d[7:9])
	m.blockSize = bin.Uint32(d[9:13])
	m.root = bin.Uint64(d[13:21])
	m.freelist = bin.Uint64(d[21:29])
	copy(m.formatID[:], d[29:45])

	if m.magic != magic {
		return errors.Wrapf(customerrors.ErrBadSuperblock, "bad magic %#x", m.magic)
	}
	if m.version != version {
		return errors.Wrapf(customerrors.ErrBadSuperblock, "incompatible version %#x (expected: %#x)", m.version, version)
	}

	return nil
}
