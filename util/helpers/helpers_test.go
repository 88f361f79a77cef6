package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	padded, ok := Pad([]byte("ab"), 4)
	require.True(t, ok)
	require.Equal(t, []byte{'a', 'b', 0, 0}, padded)

	_, ok = Pad([]byte("abcde"), 4)
	require.False(t, ok)
}

func TestRender(t *testing.T) {
	require.Equal(t, "key1", Render([]byte{'k', 'e', 'y', '1', 0, 0}))
	require.Equal(t, "0x0102", Render([]byte{1, 2}))
	require.Equal(t, "", Render(make([]byte, 3)))
	require.Equal(t, "0x6bff00", Render([]byte{'k', 0xFF, 0}))
	require.Equal(t, "héllo", Render([]byte("héllo\x00")))
}
