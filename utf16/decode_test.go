package utf16_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerowindow/rawntfs/utf16"
)

func TestDecodeString(t *testing.T) {
	s, err := utf16.DecodeString([]byte{'$', 0x00, 'M', 0x00, 'F', 0x00, 'T', 0x00})
	require.Nil(t, err)
	assert.Equal(t, "$MFT", s)
}

func TestDecodeStringEmpty(t *testing.T) {
	s, err := utf16.DecodeString([]byte{})
	require.Nil(t, err)
	assert.Equal(t, "", s)
}

func TestDecodeStringOddLength(t *testing.T) {
	_, err := utf16.DecodeString([]byte{'a', 0x00, 'b'})
	assert.Error(t, err)
}

func TestDecodeStringUnpairedSurrogateIsReplaced(t *testing.T) {
	s, err := utf16.DecodeString([]byte{0x01, 0xD8, 'x', 0x00})
	require.Nil(t, err)
	assert.Equal(t, "�x", s)
}

func TestDecodeStringNonAscii(t *testing.T) {
	s, err := utf16.DecodeString([]byte{0xE9, 0x00, 0x2E, 0x4E})
	require.Nil(t, err)
	assert.Equal(t, "é丮", s)
}
