package bptree

import (
	"reflect"
	"testing"

	"go-btindex/pkg/customerrors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func Test_metadata_Binary(t *testing.T) {
	original := metadata{
		magic:     magic,
		version:   version,
		flags:     1,
		keySize:   8,
		valueSize: 16,
		blockSize: 111,
		root:      9,
		freelist:  4,
		formatID:  uuid.New(),
	}

	d, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %#v", err)
	}
	assert(t, len(d) == 111, "expected a full block, got %d bytes", len(d))

	got := metadata{}
	if err := got.UnmarshalBinary(d); err != nil {
		t.Fatalf("failed to unmarshal: %#v", err)
	}

	if !reflect.DeepEqual(original, got) {
		t.Errorf("want=%#v\ngot=%#v", original, got)
	}
}

func Test_metadata_Invalid(t *testing.T) {
	m := metadata{magic: magic, version: version, blockSize: 64}
	d, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal: %#v", err)
	}

	bad := append([]byte(nil), d...)
	bad[1] ^= 0xFF
	err = (&metadata{}).UnmarshalBinary(bad)
	assert(t, errors.Is(err, customerrors.ErrBadSuperblock), "expected bad magic, got %v", err)

	bad = append([]byte(nil), d...)
	bad[3] = version + 1
	err = (&metadata{}).UnmarshalBinary(bad)
	assert(t, errors.Is(err, customerrors.ErrBadSuperblock), "expected bad version, got %v", err)

	bad = append([]byte(nil), d...)
	bad[0] = uint8(typeLeaf)
	err = (&metadata{}).UnmarshalBinary(bad)
	assert(t, errors.Is(err, customerrors.ErrBadSuperblock), "expected bad tag, got %v", err)

	_, err = (&metadata{blockSize: metadataSize - 1}).MarshalBinary()
	assert(t, err != nil, "expected a block too small for the superblock to fail")
}
