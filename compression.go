// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for an entry.
type CompressionMethod uint16

// Supported compression methods according to ZIP specification
const (
	Store   CompressionMethod = 0 // No compression - data stored as-is
	Deflate CompressionMethod = 8 // DEFLATE compression
)

func (m CompressionMethod) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

// Compression levels for DEFLATE algorithm
const (
	DeflateHuffmanOnly = flate.HuffmanOnly // Huffman coding only, no matching
	DeflateSuperFast   = 1                 // Super fast compression (lowest ratio, fastest speed)
	DeflateFast        = 3                 // Fast compression (lower ratio, faster speed)
	DeflateNormal      = 6                 // Default compression level (good balance between speed and ratio)
	DeflateMaximum     = 9                 // Maximum compression (best ratio, slowest speed)
)

// compressor is the per-entry compression stage. Close flushes any buffered
// output and terminates the compressed stream.
type compressor interface {
	io.Writer
	Close() error
}

// storeCompressor passes data through unchanged.
type storeCompressor struct {
	dest io.Writer
}

func (s storeCompressor) Write(p []byte) (int, error) { return s.dest.Write(p) }

func (storeCompressor) Close() error { return nil }

// deflatePool hands out reusable DEFLATE writers for a single level.
type deflatePool struct {
	level int
	pool  sync.Pool
}

func newDeflatePool(level int) *deflatePool {
	return &deflatePool{level: level}
}

// open returns a compressor writing to dest. The underlying writer goes back
// to the pool once the compressor is closed.
func (d *deflatePool) open(dest io.Writer) (compressor, error) {
	if fw, ok := d.pool.Get().(*flate.Writer); ok {
		fw.Reset(dest)
		return &deflateCompressor{fw: fw, pool: d}, nil
	}

	fw, err := flate.NewWriter(dest, d.level)
	if err != nil {
		return nil, fmt.Errorf("%w: deflate level %d: %v", ErrInvalidEntry, d.level, err)
	}
	return &deflateCompressor{fw: fw, pool: d}, nil
}

type deflateCompressor struct {
	fw   *flate.Writer
	pool *deflatePool
}

func (c *deflateCompressor) Write(p []byte) (int, error) {
	return c.fw.Write(p)
}

func (c *deflateCompressor) Close() error {
	if c.fw == nil {
		return nil
	}
	err := c.fw.Close()
	if err == nil {
		c.pool.pool.Put(c.fw)
	}
	c.fw = nil
	return err
}

// validDeflateLevel reports whether level can be handed to the DEFLATE encoder.
func validDeflateLevel(level int) bool {
	return level == DeflateHuffmanOnly || level == flate.DefaultCompression ||
		(level >= flate.BestSpeed && level <= flate.BestCompression)
}

// compressionLevelBits returns general purpose bits 1 and 2 for a DEFLATE level.
func compressionLevelBits(level int) uint16 {
	switch {
	case level == DeflateHuffmanOnly, level == DeflateSuperFast:
		return 0x0006
	case level == 2, level == DeflateFast:
		return 0x0004
	case level >= 8:
		return 0x0002
	default:
		return 0x0000
	}
}
