// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionLevelBits(t *testing.T) {
	tests := []struct {
		level int
		want  uint16
	}{
		{DeflateHuffmanOnly, 0x6},
		{DeflateSuperFast, 0x6},
		{2, 0x4},
		{DeflateFast, 0x4},
		{flate.DefaultCompression, 0x0},
		{DeflateNormal, 0x0},
		{7, 0x0},
		{8, 0x2},
		{DeflateMaximum, 0x2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, compressionLevelBits(tt.level), "level %d", tt.level)
	}
}

func TestValidDeflateLevel(t *testing.T) {
	for _, level := range []int{DeflateHuffmanOnly, flate.DefaultCompression, 1, 5, 9} {
		assert.True(t, validDeflateLevel(level), "level %d", level)
	}
	for _, level := range []int{-3, 0, 10, 42} {
		assert.False(t, validDeflateLevel(level), "level %d", level)
	}
}

func TestCompressionMethod_String(t *testing.T) {
	assert.Equal(t, "store", Store.String())
	assert.Equal(t, "deflate", Deflate.String())
	assert.Equal(t, "method(12)", CompressionMethod(12).String())
}

func TestStoreCompressor(t *testing.T) {
	buf := new(bytes.Buffer)
	c := storeCompressor{dest: buf}

	n, err := c.Write([]byte("as is"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, c.Close())
	assert.Equal(t, "as is", buf.String())
}

func TestDeflatePool(t *testing.T) {
	pool := newDeflatePool(DeflateNormal)
	text := strings.Repeat("pooled writers are reset between entries ", 50)

	// Each round must produce a complete stream regardless of writer reuse
	for i := range 3 {
		buf := new(bytes.Buffer)
		c, err := pool.open(buf)
		require.NoError(t, err)

		_, err = c.Write([]byte(text))
		require.NoError(t, err)
		require.NoError(t, c.Close())
		require.NoError(t, c.Close(), "second close is a no-op")

		assert.Less(t, buf.Len(), len(text), "round %d", i)

		got, err := io.ReadAll(flate.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, text, string(got), "round %d", i)
	}
}

func TestDeflatePool_InvalidLevel(t *testing.T) {
	_, err := newDeflatePool(42).open(io.Discard)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}
