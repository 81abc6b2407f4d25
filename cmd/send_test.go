package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexString(t *testing.T) {
	tests := []struct {
		in       string
		expected []byte
	}{
		{"48656c6c6f", []byte("Hello")},
		{"48 65 6C 6C 6F", []byte("Hello")},
		{"0x01 0xFF", []byte{0x01, 0xff}},
	}

	for _, test := range tests {
		got, err := parseHexString(test.in)
		require.NoError(t, err, test.in)
		assert.Equal(t, test.expected, got, test.in)
	}

	for _, bad := range []string{"", "   ", "123", "zz"} {
		_, err := parseHexString(bad)
		assert.Error(t, err, bad)
	}
}

func TestPayloadEncoder(t *testing.T) {
	got, err := payloadEncoder{newline: true}.encode("AT")
	require.NoError(t, err)
	assert.Equal(t, "AT\n", got)

	got, err = payloadEncoder{}.encode("AT")
	require.NoError(t, err)
	assert.Equal(t, "AT", got)

	got, err = payloadEncoder{hex: true, newline: true}.encode("41 54")
	require.NoError(t, err)
	assert.Equal(t, "AT", got)

	_, err = payloadEncoder{hex: true}.encode("4")
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}
