// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"encoding/binary"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/lemon4ksan/zipstream/internal"
	"github.com/lemon4ksan/zipstream/internal/sys"
)

// Compression method indicates AES encryption.
// The actual compression method is stored in extra field.
const winZipAESMarker = 99

// Constants defining ZIP format structure and special tag values
const (
	// LatestZipVersion represents the maximum ZIP specification version supported
	// by this implementation. Version 63 corresponds to ZIP 6.3 specification.
	LatestZipVersion uint16 = 63

	// Zip64ExtraFieldTag identifies the extra field that contains 64-bit size
	// and offset information for entries exceeding 4GB limits.
	Zip64ExtraFieldTag uint16 = 0x0001

	// AESEncryptionTag identifies the extra field for WinZip AES encryption metadata,
	// including encryption strength and actual compression method.
	AESEncryptionTag uint16 = 0x9901
)

// General purpose bit flags set by the writer.
const (
	FlagEncrypted      uint16 = 0x0001
	FlagDataDescriptor uint16 = 0x0008
	FlagUTF8           uint16 = flagUTF8
)

// EntryRecord is the final state of a closed entry: everything a central
// directory needs to reference it.
type EntryRecord struct {
	Name    string
	Comment string

	// LocalHeaderOffset is the archive offset of the entry's local file header.
	LocalHeaderOffset int64

	// CompressedSize counts every byte between the local header and the data
	// descriptor, including encryption headers and the AES authentication code.
	CompressedSize   int64
	UncompressedSize int64

	// CRC32 is the value recorded in the descriptor: the plaintext checksum,
	// or zero for AE-2 entries.
	CRC32 uint32

	Flags uint16

	// Method is the actual compression method. The headers carry 99 instead
	// for AES entries; see HeaderMethod.
	Method      CompressionMethod
	Level       int
	Encryption  EncryptionMethod
	AESStrength AESStrength
	AESVersion  AESVersion

	Modified time.Time
	Mode     fs.FileMode
	IsDir    bool

	// Zip64 reports whether 64-bit sizes were used for the entry.
	Zip64 bool

	rawName    []byte // Name in the archive charset
	rawComment []byte // Comment in the archive charset
}

// HeaderMethod returns the compression method as stored in the headers.
func (r *EntryRecord) HeaderMethod() uint16 {
	if r.Encryption == AES {
		return winZipAESMarker
	}
	return uint16(r.Method)
}

// RawName returns the name bytes exactly as written to the archive.
func (r *EntryRecord) RawName() []byte { return r.rawName }

// requiresZip64 reports whether the central directory needs 64-bit values.
func (r *EntryRecord) requiresZip64() bool {
	return r.Zip64 || r.CompressedSize >= math.MaxUint32 ||
		r.UncompressedSize >= math.MaxUint32 ||
		r.LocalHeaderOffset >= math.MaxUint32
}

// entryHeaders is responsible for generating ZIP format headers from an entry record.
type entryHeaders struct {
	rec *EntryRecord
}

func newEntryHeaders(r *EntryRecord) entryHeaders {
	return entryHeaders{rec: r}
}

// LocalHeader generates the local file header that precedes the entry data.
// CRC and sizes are always deferred to the data descriptor.
func (zh entryHeaders) LocalHeader() internal.LocalFileHeader {
	dosDate, dosTime := timeToMsDos(zh.rec.Modified)
	localExtra := zh.localExtraData()

	var size uint32
	if zh.rec.Zip64 {
		size = math.MaxUint32
	}

	return internal.LocalFileHeader{
		VersionNeededToExtract: zh.versionNeededToExtract(),
		GeneralPurposeBitFlag:  zh.rec.Flags,
		CompressionMethod:      zh.rec.HeaderMethod(),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CompressedSize:         size,
		UncompressedSize:       size,
		FilenameLength:         uint16(len(zh.rec.rawName)),
		ExtraFieldLength:       uint16(len(localExtra)),
		Filename:               zh.rec.rawName,
		ExtraField:             localExtra,
	}
}

// DataDescriptor generates the record written after the entry data.
func (zh entryHeaders) DataDescriptor() internal.DataDescriptor {
	return internal.DataDescriptor{
		CRC32:            zh.rec.CRC32,
		CompressedSize:   uint64(zh.rec.CompressedSize),
		UncompressedSize: uint64(zh.rec.UncompressedSize),
		Zip64:            zh.rec.Zip64,
	}
}

// CentralDirEntry generates the central directory entry for the record.
func (zh entryHeaders) CentralDirEntry() internal.CentralDirectory {
	dosDate, dosTime := timeToMsDos(zh.rec.Modified)
	extra := zh.centralExtraData()

	return internal.CentralDirectory{
		VersionMadeBy:          zh.versionMadeBy(),
		VersionNeededToExtract: zh.versionNeededToExtract(),
		GeneralPurposeBitFlag:  zh.rec.Flags,
		CompressionMethod:      zh.rec.HeaderMethod(),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  zh.rec.CRC32,
		CompressedSize:         uint32(min(math.MaxUint32, zh.rec.CompressedSize)),
		UncompressedSize:       uint32(min(math.MaxUint32, zh.rec.UncompressedSize)),
		FilenameLength:         uint16(len(zh.rec.rawName)),
		ExtraFieldLength:       uint16(internal.ExtraFieldLength(extra)),
		FileCommentLength:      uint16(len(zh.rec.rawComment)),
		ExternalFileAttributes: zh.externalFileAttributes(),
		LocalHeaderOffset:      uint32(min(math.MaxUint32, zh.rec.LocalHeaderOffset)),
		Filename:               zh.rec.rawName,
		ExtraField:             extra,
		Comment:                zh.rec.rawComment,
	}
}

func (zh entryHeaders) versionNeededToExtract() uint16 {
	if zh.rec.Encryption == AES {
		return 51
	}
	if zh.rec.requiresZip64() {
		return 45
	}
	if zh.rec.Method == Deflate {
		return 20
	}
	if zh.rec.IsDir || strings.Contains(zh.rec.Name, "/") {
		return 20
	}
	if zh.rec.Encryption == ZipCrypto {
		return 20
	}
	return 10
}

func (zh entryHeaders) versionMadeBy() uint16 {
	return uint16(sys.HostSystemUNIX)<<8 | LatestZipVersion
}

// externalFileAttributes stores the Unix mode in the high 16 bits and the
// matching MS-DOS attributes in the low byte.
func (zh entryHeaders) externalFileAttributes() uint32 {
	mode := uint32(zh.rec.Mode & fs.ModePerm)
	var dos uint32
	switch {
	case zh.rec.IsDir:
		mode |= sys.S_IFDIR
		dos |= sys.DOSDirectory
	case zh.rec.Mode&fs.ModeSymlink != 0:
		mode |= sys.S_IFLNK
	default:
		mode |= sys.S_IFREG
		dos |= sys.DOSArchive
	}
	if zh.rec.Mode&0200 == 0 {
		dos |= sys.DOSReadOnly
	}
	return mode<<16 | dos
}

// localExtraData builds the extra block of the local header.
func (zh entryHeaders) localExtraData() []byte {
	var buf []byte

	// ZIP64: sizes live in the descriptor, so the local record carries zeros
	if zh.rec.Zip64 {
		buf = append(buf, encodeZip64LocalExtraField()...)
	}

	if zh.rec.Encryption == AES {
		buf = append(buf, encodeAESExtraField(zh.rec)...)
	}

	return buf
}

// centralExtraData builds the extra fields of the central directory entry.
func (zh entryHeaders) centralExtraData() map[uint16][]byte {
	extra := make(map[uint16][]byte)
	if zh.rec.Encryption == AES {
		extra[AESEncryptionTag] = encodeAESExtraField(zh.rec)
	}
	if zh.rec.requiresZip64() {
		// Declared-large entries that ended up small have nothing to extend
		if field := encodeZip64ExtraField(zh.rec); len(field) > 4 {
			extra[Zip64ExtraFieldTag] = field
		}
	}
	return extra
}

// encodeZip64ExtraField generates ZIP64 extra field for entries exceeding 4GB limits.
// Contains 64-bit versions of uncompressed size, compressed size, and local header offset.
// Only includes fields that actually exceed 32-bit limits to minimize overhead.
func encodeZip64ExtraField(r *EntryRecord) []byte {
	data := make([]byte, 4, 28)
	binary.LittleEndian.PutUint16(data[0:2], Zip64ExtraFieldTag)

	if r.UncompressedSize >= math.MaxUint32 {
		data = binary.LittleEndian.AppendUint64(data, uint64(r.UncompressedSize))
	}
	if r.CompressedSize >= math.MaxUint32 {
		data = binary.LittleEndian.AppendUint64(data, uint64(r.CompressedSize))
	}
	if r.LocalHeaderOffset >= math.MaxUint32 {
		data = binary.LittleEndian.AppendUint64(data, uint64(r.LocalHeaderOffset))
	}

	binary.LittleEndian.PutUint16(data[2:4], uint16(len(data)-4))
	return data
}

// encodeZip64LocalExtraField generates the Zip64 field for a local header whose
// sizes are deferred to the data descriptor.
func encodeZip64LocalExtraField() []byte {
	// Fixed size: Tag(2) + Size(2) + Uncompressed(8) + Compressed(8) = 20 bytes
	data := make([]byte, 20)

	binary.LittleEndian.PutUint16(data[0:2], Zip64ExtraFieldTag)
	binary.LittleEndian.PutUint16(data[2:4], 16) // Size of payload

	return data
}

// encodeAESExtraField generates the WinZip AES Extra Field
func encodeAESExtraField(r *EntryRecord) []byte {
	// Fixed size: 2+2+2+2+1+2 = 11 bytes header, 7 bytes data
	data := make([]byte, 11)

	binary.LittleEndian.PutUint16(data[0:2], AESEncryptionTag)
	binary.LittleEndian.PutUint16(data[2:4], 7)
	binary.LittleEndian.PutUint16(data[4:6], uint16(r.AESVersion))
	// Vendor ID ("AE")
	data[6] = 'A'
	data[7] = 'E'
	data[8] = byte(r.AESStrength)
	binary.LittleEndian.PutUint16(data[9:11], uint16(r.Method))

	return data
}
