// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipstream implements a streaming writer for the ZIP archive format.
//
// Entries are written one after another to any io.Writer. Each entry is opened
// with PutNextEntry, fed through Write and finished with CloseEntry; the writer
// never seeks. Sizes and the CRC-32 are not known when the local file header is
// written, so every entry sets general purpose bit 3 and is followed by a data
// descriptor carrying the final values.
//
// # Pipeline
//
// Bytes passed to Write flow through a fixed chain of stages selected when the
// entry is opened:
//
//	plaintext -> CRC-32 -> Store | Deflate -> none | ZipCrypto | AES -> output
//
// The checksum observes plaintext, the cipher observes compressed bytes, and
// the output counts everything between the local header and the descriptor as
// the entry's compressed size, including encryption headers and trailers.
//
// # Encryption
//
// Two schemes are supported. ZipCrypto is the legacy PKWARE stream cipher and
// should only be used for compatibility. AES is the WinZip AE-1/AE-2 format with
// 128 or 256 bit keys derived with PBKDF2-HMAC-SHA1 and authenticated with a
// truncated HMAC-SHA1 trailer. AE-2 entries record a zero CRC.
//
// # Basic Usage
//
//	zw := zipstream.NewWriter(f, zipstream.WithPassword([]byte("secret")))
//	err := zw.PutNextEntry(zipstream.EntryHeader{
//		Name:       "report.csv",
//		Method:     zipstream.Deflate,
//		Encryption: zipstream.AES,
//		Size:       zipstream.SizeUnknown,
//	})
//	// ... zw.Write(chunk) as often as needed ...
//	err = zw.CloseEntry()
//	err = zw.Close() // central directory and end records
//
// A Writer is not safe for concurrent use.
package zipstream

import (
	"io"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/text/encoding"
)

// SizeUnknown is a sentinel value used when the uncompressed size of an entry
// is not declared before writing.
const SizeUnknown int64 = -1

// EntryHeader describes an entry to be written. The writer copies it on
// PutNextEntry; later changes by the caller have no effect.
type EntryHeader struct {
	// Name is the path within the archive, using forward slashes.
	// A trailing slash makes the entry a directory.
	Name string

	// Comment is an entry-specific comment stored in the central directory.
	Comment string

	// Method is the compression algorithm.
	Method CompressionMethod

	// Level is the DEFLATE level. Zero selects the writer default.
	Level int

	// Encryption selects the cipher applied after compression.
	Encryption EncryptionMethod

	// AESStrength and AESVersion apply to AES entries only.
	// Zero values select AES256 and AE2.
	AESStrength AESStrength
	AESVersion  AESVersion

	// Size is the declared uncompressed size. A positive value declares it;
	// zero declares nothing unless SizeKnown is set, so an empty stored file
	// needs both. SizeUnknown is accepted as an explicit "not declared".
	// Store entries must declare it; Write and CloseEntry enforce it.
	// For Deflate it is a hint: a value of at least 4 GiB selects Zip64
	// local headers.
	Size int64

	// SizeKnown marks a zero Size as declared.
	SizeKnown bool

	// Modified is the last modification time. Zero uses the writer clock.
	Modified time.Time

	// Mode holds Unix permission bits for the external attributes.
	// Zero selects 0644 for files and 0755 for directories.
	Mode fs.FileMode

	// Password overrides the writer password for this entry.
	Password []byte
}

// declaredSize returns the declared uncompressed size, or SizeUnknown.
func (h *EntryHeader) declaredSize() int64 {
	if h.Size > 0 || (h.Size == 0 && h.SizeKnown) {
		return h.Size
	}
	return SizeUnknown
}

// Option configures a Writer.
type Option func(w *Writer)

// WithPassword sets the default password used by encrypted entries that do
// not carry their own.
func WithPassword(pwd []byte) Option {
	return func(w *Writer) {
		w.password = pwd
	}
}

// WithCharset sets the charset used to encode entry names and comments.
// nil or unicode.UTF8 writes UTF-8 and sets the language encoding flag.
func WithCharset(enc encoding.Encoding) Option {
	return func(w *Writer) {
		w.charset = enc
	}
}

// WithRand replaces crypto/rand as the source of salts and ZipCrypto headers.
// Only deterministic tests should need this.
func WithRand(r io.Reader) Option {
	return func(w *Writer) {
		if r != nil {
			w.rand = r
		}
	}
}

// WithClock sets the time source used for entries without a Modified time.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger sets the logger for debug records about entries.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDefaultLevel sets the DEFLATE level used when EntryHeader.Level is zero.
func WithDefaultLevel(level int) Option {
	return func(w *Writer) {
		w.defaultLevel = level
	}
}
