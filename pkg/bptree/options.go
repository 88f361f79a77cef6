package bptree

var defaultOptions = Options{
	KeySize:   8,
	ValueSize: 8,
	Unique:    true,
}

// Options represents the configuration options for the B+ tree index.
type Options struct {
	// KeySize is the fixed size of every key. Insert, Lookup and Update
	// reject keys of any other length.
	KeySize int `json:"key_size"`

	// ValueSize is the fixed size of every value. Leaf capacity shrinks as
	// this grows.
	ValueSize int `json:"value_size"`

	// Unique is recorded in the superblock. Keys are unique regardless of
	// its value.
	Unique bool `json:"unique"`
}
