package helpers

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"
)

func CreateDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// CreateParentDir makes sure the directory holding file exists.
func CreateParentDir(file string) error {
	return CreateDir(filepath.Dir(file))
}

func Copy(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// Pad returns b right-padded with zero bytes to size. ok is false when b
// is longer than size.
func Pad(b []byte, size int) (padded []byte, ok bool) {
	if len(b) > size {
		return nil, false
	}
	padded = make([]byte, size)
	copy(padded, b)
	return padded, true
}

// Render formats a fixed-size payload for humans. Trailing zero padding
// is dropped; printable payloads are shown as text, anything else as hex.
func Render(b []byte) string {
	trimmed := bytes.TrimRight(b, "\x00")
	if !utf8.Valid(trimmed) {
		return "0x" + hex.EncodeToString(b)
	}
	for _, r := range string(trimmed) {
		if !unicode.IsPrint(r) {
			return "0x" + hex.EncodeToString(b)
		}
	}
	return string(trimmed)
}
