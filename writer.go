// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/encoding"

	"github.com/lemon4ksan/zipstream/internal"
)

type writerState uint8

const (
	stateIdle writerState = iota
	stateOpen
	stateClosed
)

// Writer streams entries into a ZIP archive. Entries are written strictly one
// at a time and the destination is only ever appended to.
type Writer struct {
	out *countWriter

	password     []byte
	charset      encoding.Encoding
	rand         io.Reader
	now          func() time.Time
	logger       *slog.Logger
	defaultLevel int

	deflaters map[int]*deflatePool // One pool per DEFLATE level in use

	state   writerState
	err     error // First unrecoverable failure, returned by every later call
	cur     *entryWriter
	records []EntryRecord
	comment []byte
}

// entryWriter holds the pipeline and counters of the open entry.
type entryWriter struct {
	rec      EntryRecord
	declared int64 // Declared uncompressed size or SizeUnknown
	written  int64 // Plaintext bytes accepted so far

	crc     checksum
	comp    compressor
	enc     encryptor
	section *sectionCounter
	started time.Time
}

// NewWriter returns a Writer appending a ZIP archive to dest.
func NewWriter(dest io.Writer, opts ...Option) *Writer {
	w := &Writer{
		out:          &countWriter{dest: dest},
		rand:         rand.Reader,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
		defaultLevel: DeflateNormal,
		deflaters:    make(map[int]*deflatePool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Offset returns the number of bytes appended to the destination so far.
func (w *Writer) Offset() int64 { return w.out.count }

// Entries returns the records of all closed entries in archive order.
func (w *Writer) Entries() []EntryRecord {
	out := make([]EntryRecord, len(w.records))
	copy(out, w.records)
	return out
}

// SetComment sets the archive comment written by Close.
func (w *Writer) SetComment(comment string) error {
	if w.state == stateClosed {
		return ErrClosed
	}
	raw, err := encodeText(w.charset, comment)
	if err != nil {
		return err
	}
	if len(raw) > math.MaxUint16 {
		return ErrCommentTooLong
	}
	w.comment = raw
	return nil
}

// PutNextEntry validates h and starts a new entry. The local file header and
// any encryption header are written before it returns. Validation failures
// leave the archive untouched and the writer usable.
//
// The local header carries a Zip64 extra field only when h declares a size of
// at least 4 GiB. An entry of undeclared size that grows past that still gets
// a Zip64 data descriptor and central directory entry, but readers that parse
// the stream from local headers alone will expect a 32-bit descriptor. Declare
// a large Size for such entries.
func (w *Writer) PutNextEntry(h EntryHeader) error {
	switch {
	case w.state == stateClosed:
		return ErrClosed
	case w.err != nil:
		return w.err
	case w.state == stateOpen:
		return ErrEntryOpen
	}

	rec, password, err := w.prepareEntry(h)
	if err != nil {
		return err
	}

	declared := h.declaredSize()
	if rec.IsDir {
		declared = 0
	}

	rec.LocalHeaderOffset = w.out.count
	if _, err := w.out.Write(newEntryHeaders(&rec).LocalHeader().Encode()); err != nil {
		return w.fail(fmt.Errorf("write local header: %w", err))
	}

	ew := &entryWriter{
		rec:      rec,
		declared: declared,
		section:  &sectionCounter{dest: w.out},
		started:  w.now(),
	}
	ew.crc.reset()

	if ew.enc, err = w.newEncryptor(ew, password); err != nil {
		return w.fail(err)
	}
	if ew.comp, err = w.newCompressor(ew); err != nil {
		return w.fail(err)
	}

	w.cur = ew
	w.state = stateOpen

	w.logger.Debug("entry opened",
		slog.String("name", rec.Name),
		slog.String("method", rec.Method.String()),
		slog.String("encryption", rec.Encryption.String()),
		slog.Int64("offset", rec.LocalHeaderOffset),
		slog.Int64("overhead", encryptionOverhead(rec.Encryption, rec.AESStrength)),
		slog.Bool("zip64", rec.Zip64),
	)
	return nil
}

// Write pushes p through the open entry's checksum, compressor and cipher.
func (w *Writer) Write(p []byte) (int, error) {
	switch {
	case w.state == stateClosed:
		return 0, ErrClosed
	case w.err != nil:
		return 0, w.err
	case w.state != stateOpen:
		return 0, ErrNoEntry
	}
	if len(p) == 0 {
		return 0, nil
	}

	ew := w.cur
	if ew.bounded() && ew.written+int64(len(p)) > ew.declared {
		return 0, fmt.Errorf("%w: %q declared %d bytes, got at least %d",
			ErrSizeMismatch, ew.rec.Name, ew.declared, ew.written+int64(len(p)))
	}

	ew.crc.update(p)
	n, err := ew.comp.Write(p)
	ew.written += int64(n)
	if err != nil {
		return n, w.fail(fmt.Errorf("write entry data: %w", err))
	}
	return n, nil
}

// CloseEntry finishes the open entry: it flushes the compressor, writes the
// AES authentication code if any, then the data descriptor.
func (w *Writer) CloseEntry() error {
	switch {
	case w.state == stateClosed:
		return ErrClosed
	case w.err != nil:
		return w.err
	case w.state != stateOpen:
		return ErrNoEntry
	}

	ew := w.cur
	if ew.bounded() && ew.written != ew.declared {
		return w.fail(fmt.Errorf("%w: %q declared %d bytes, got %d",
			ErrSizeMismatch, ew.rec.Name, ew.declared, ew.written))
	}

	if err := ew.comp.Close(); err != nil {
		return w.fail(fmt.Errorf("flush compressor: %w", err))
	}
	if err := ew.enc.Close(); err != nil {
		return w.fail(err)
	}

	rec := &ew.rec
	rec.UncompressedSize = ew.written
	rec.CompressedSize = ew.section.count
	rec.CRC32 = ew.crc.sum()
	if rec.Encryption == AES && rec.AESVersion == AE2 {
		rec.CRC32 = 0
	}
	if rec.UncompressedSize >= math.MaxUint32 || rec.CompressedSize >= math.MaxUint32 {
		rec.Zip64 = true
	}

	if _, err := w.out.Write(newEntryHeaders(rec).DataDescriptor().Encode()); err != nil {
		return w.fail(fmt.Errorf("write data descriptor: %w", err))
	}

	w.records = append(w.records, *rec)
	w.cur = nil
	w.state = stateIdle

	w.logger.Debug("entry closed",
		slog.String("name", rec.Name),
		slog.String("size", humanize.Bytes(uint64(rec.UncompressedSize))),
		slog.String("compressed", humanize.Bytes(uint64(rec.CompressedSize))),
		slog.String("crc32", fmt.Sprintf("%08x", rec.CRC32)),
		slog.Duration("elapsed", w.now().Sub(ew.started)),
	)
	return nil
}

// Close closes the open entry, if any, then writes the central directory and
// the end of central directory records. The destination is not closed.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return ErrClosed
	}
	if w.err != nil {
		w.state = stateClosed
		return w.err
	}
	if w.state == stateOpen {
		if err := w.CloseEntry(); err != nil {
			w.state = stateClosed
			return err
		}
	}
	w.state = stateClosed

	if err := w.writeCentralDirAndEndRecords(); err != nil {
		w.err = err
		return err
	}

	w.logger.Debug("archive closed",
		slog.Int("entries", len(w.records)),
		slog.String("size", humanize.Bytes(uint64(w.out.count))),
	)
	return nil
}

// writeCentralDirAndEndRecords writes one central directory entry per closed
// entry followed by the end records. Zip64 end records are added when the
// entry count, directory size or directory offset overflow the classic fields.
func (w *Writer) writeCentralDirAndEndRecords() error {
	cdOffset := w.out.count
	for i := range w.records {
		cd := newEntryHeaders(&w.records[i]).CentralDirEntry()
		if _, err := w.out.Write(cd.Encode()); err != nil {
			return fmt.Errorf("write central directory: %w", err)
		}
	}
	cdSize := w.out.count - cdOffset
	entries := len(w.records)

	if entries >= math.MaxUint16 || cdSize >= math.MaxUint32 || cdOffset >= math.MaxUint32 {
		zip64End := w.out.count
		record := internal.EncodeZip64EndOfCentralDirRecord(uint64(entries), uint64(cdSize), uint64(cdOffset))
		if _, err := w.out.Write(record); err != nil {
			return fmt.Errorf("write zip64 end of central directory: %w", err)
		}
		locator := internal.EncodeZip64EndOfCentralDirLocator(uint64(zip64End))
		if _, err := w.out.Write(locator); err != nil {
			return fmt.Errorf("write zip64 end of central directory locator: %w", err)
		}
	}

	end := internal.EncodeEndOfCentralDirRecord(entries, uint64(cdSize), uint64(cdOffset), w.comment)
	if _, err := w.out.Write(end); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}
	return nil
}

// prepareEntry resolves defaults and checks h without touching the output.
func (w *Writer) prepareEntry(h EntryHeader) (EntryRecord, []byte, error) {
	if h.Name == "" {
		return EntryRecord{}, nil, fmt.Errorf("%w: empty name", ErrInvalidEntry)
	}
	if h.Size < SizeUnknown || (h.SizeKnown && h.Size < 0) {
		return EntryRecord{}, nil, fmt.Errorf("%w: %q has negative size %d", ErrInvalidEntry, h.Name, h.Size)
	}
	declared := h.declaredSize()

	rec := EntryRecord{
		Name:        h.Name,
		Comment:     h.Comment,
		Method:      h.Method,
		Encryption:  h.Encryption,
		AESStrength: h.AESStrength,
		AESVersion:  h.AESVersion,
		Modified:    h.Modified,
		Mode:        h.Mode.Perm(),
		IsDir:       strings.HasSuffix(h.Name, "/"),
	}
	if h.Mode&fs.ModeSymlink != 0 {
		rec.Mode |= fs.ModeSymlink
	}

	if rec.IsDir {
		if h.Size > 0 {
			return EntryRecord{}, nil, fmt.Errorf("%w: directory %q with size %d", ErrInvalidEntry, h.Name, h.Size)
		}
		rec.Method = Store
		rec.Encryption = NotEncrypted
	}

	switch rec.Method {
	case Store:
		if !rec.IsDir && declared == SizeUnknown {
			return EntryRecord{}, nil, fmt.Errorf("%w: stored entry %q needs a declared size", ErrInvalidEntry, h.Name)
		}
	case Deflate:
		rec.Level = h.Level
		if rec.Level == 0 {
			rec.Level = w.defaultLevel
		}
		if !validDeflateLevel(rec.Level) {
			return EntryRecord{}, nil, fmt.Errorf("%w: deflate level %d", ErrInvalidEntry, rec.Level)
		}
	default:
		return EntryRecord{}, nil, fmt.Errorf("%w: compression %s", ErrUnsupported, rec.Method)
	}

	password := h.Password
	if len(password) == 0 {
		password = w.password
	}

	switch rec.Encryption {
	case NotEncrypted:
		rec.AESStrength, rec.AESVersion = 0, 0
		password = nil
	case ZipCrypto:
		rec.AESStrength, rec.AESVersion = 0, 0
	case AES:
		if rec.AESStrength == 0 {
			rec.AESStrength = AES256
		}
		if rec.AESVersion == 0 {
			rec.AESVersion = AE2
		}
		if rec.AESStrength.keySize() == 0 {
			return EntryRecord{}, nil, fmt.Errorf("%w: %s", ErrUnsupported, rec.AESStrength)
		}
		if rec.AESVersion != AE1 && rec.AESVersion != AE2 {
			return EntryRecord{}, nil, fmt.Errorf("%w: aes version %d", ErrUnsupported, rec.AESVersion)
		}
	default:
		return EntryRecord{}, nil, fmt.Errorf("%w: %s", ErrUnsupported, rec.Encryption)
	}
	if rec.Encryption != NotEncrypted && len(password) == 0 {
		return EntryRecord{}, nil, fmt.Errorf("%w: %q", ErrMissingPassword, h.Name)
	}

	var err error
	if rec.rawName, err = encodeText(w.charset, h.Name); err != nil {
		return EntryRecord{}, nil, err
	}
	if len(rec.rawName) > math.MaxUint16 {
		return EntryRecord{}, nil, ErrFilenameTooLong
	}
	if rec.rawComment, err = encodeText(w.charset, h.Comment); err != nil {
		return EntryRecord{}, nil, err
	}
	if len(rec.rawComment) > math.MaxUint16 {
		return EntryRecord{}, nil, ErrCommentTooLong
	}

	if rec.Modified.IsZero() {
		rec.Modified = w.now()
	}
	if rec.Mode.Perm() == 0 {
		if rec.IsDir {
			rec.Mode |= 0755
		} else {
			rec.Mode |= 0644
		}
	}

	rec.Flags = FlagDataDescriptor
	if rec.Encryption != NotEncrypted {
		rec.Flags |= FlagEncrypted
	}
	if rec.Method == Deflate {
		rec.Flags |= compressionLevelBits(rec.Level)
	}
	if isUTF8Charset(w.charset) {
		rec.Flags |= FlagUTF8
	}

	rec.Zip64 = h.Size >= math.MaxUint32

	return rec, password, nil
}

// newEncryptor creates the cipher stage writing to the entry section. Its
// header goes out immediately after the local file header.
func (w *Writer) newEncryptor(ew *entryWriter, password []byte) (encryptor, error) {
	switch ew.rec.Encryption {
	case ZipCrypto:
		// Bit 3 is always set, so the check byte comes from the DOS time
		_, dosTime := timeToMsDos(ew.rec.Modified)
		return newZipCryptoWriter(ew.section, password, byte(dosTime>>8), w.rand)
	case AES:
		return newAESWriter(ew.section, password, ew.rec.AESStrength, w.rand)
	default:
		return plainEncryptor{dest: ew.section}, nil
	}
}

// newCompressor creates the compression stage writing into the cipher.
func (w *Writer) newCompressor(ew *entryWriter) (compressor, error) {
	if ew.rec.Method != Deflate {
		return storeCompressor{dest: ew.enc}, nil
	}

	pool, ok := w.deflaters[ew.rec.Level]
	if !ok {
		pool = newDeflatePool(ew.rec.Level)
		w.deflaters[ew.rec.Level] = pool
	}
	return pool.open(ew.enc)
}

// fail records err as the writer's terminal error.
func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

// bounded reports whether the entry's declared size must be matched exactly.
func (ew *entryWriter) bounded() bool {
	return ew.rec.Method == Store && ew.declared != SizeUnknown
}
