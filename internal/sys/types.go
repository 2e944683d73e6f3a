// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

// HostSystem represents the host system recorded in the "version made by" field.
type HostSystem uint8

// HostSystemUNIX marks external attributes as Unix mode bits.
const HostSystemUNIX HostSystem = 3

// Unix constants for file types (standard POSIX)
const (
	S_IFREG = 0100000 // Regular file
	S_IFDIR = 0040000 // Directory
	S_IFLNK = 0120000 // Symlink
)

// MS-DOS attribute bits stored in the low byte of the external attributes.
const (
	DOSReadOnly  = 0x01
	DOSDirectory = 0x10
	DOSArchive   = 0x20
)
