// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "hash/crc32"

// checksum accumulates the CRC-32 (IEEE) of an entry's plaintext.
type checksum struct {
	crc uint32
}

func (c *checksum) update(p []byte) {
	c.crc = crc32.Update(c.crc, crc32.IEEETable, p)
}

func (c *checksum) reset() { c.crc = 0 }

func (c *checksum) sum() uint32 { return c.crc }
