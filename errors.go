// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "errors"

var (
	// ErrInvalidEntry is returned when entry metadata cannot be written as given,
	// e.g. a Store entry without a declared uncompressed size.
	ErrInvalidEntry = errors.New("zip: invalid entry configuration")

	// ErrSizeMismatch is returned when the number of bytes written to an entry
	// diverges from its declared uncompressed size.
	ErrSizeMismatch = errors.New("zip: uncompressed size mismatch")

	// ErrMissingPassword is returned when an entry requests encryption but
	// neither the entry nor the writer carries a password.
	ErrMissingPassword = errors.New("zip: missing password")

	// ErrUnsupported is returned for method, strength or version values
	// the writer does not know how to produce.
	ErrUnsupported = errors.New("zip: unsupported combination")

	// ErrEntryOpen is returned by PutNextEntry while another entry is still open.
	ErrEntryOpen = errors.New("zip: previous entry not closed")

	// ErrNoEntry is returned by Write and CloseEntry when no entry is open.
	ErrNoEntry = errors.New("zip: no open entry")

	// ErrClosed is returned by any operation on a finalized writer.
	ErrClosed = errors.New("zip: writer closed")

	// ErrFilenameTooLong is returned when an encoded filename exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zip: filename too long")

	// ErrCommentTooLong is returned when an encoded comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")
)
