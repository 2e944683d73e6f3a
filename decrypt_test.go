// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"archive/zip"
	"bytes"
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// Readers for encrypted entries. The writer never decrypts, so they live with
// the tests that check its output.

var (
	errPasswordMismatch = errors.New("password mismatch")
	errAuthFailed       = errors.New("aes authentication failed")
	errChecksum         = errors.New("checksum mismatch")
)

func (z *zipCipher) Decrypt(buf []byte) {
	for i, c := range buf {
		b := c ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = b
	}
}

type zipCryptoReader struct {
	src    io.Reader
	cipher *zipCipher
}

func newZipCryptoReader(src io.Reader, password []byte, checkByte byte) (io.Reader, error) {
	cipher := newZipCipher(password)

	header := make([]byte, zipCryptoHeaderSz)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, fmt.Errorf("read crypto header: %w", err)
	}
	cipher.Decrypt(header)
	if header[zipCryptoHeaderSz-1] != checkByte {
		return nil, errPasswordMismatch
	}

	return &zipCryptoReader{src: src, cipher: cipher}, nil
}

func (r *zipCryptoReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 {
		r.cipher.Decrypt(p[:n])
	}
	return n, err
}

type aesReader struct {
	payload io.Reader
	src     io.Reader
	stream  *winZipCounter
	mac     hash.Hash
}

// newAESReader reads the salt and verification value from src. size is the
// entry's compressed size, which includes both and the authentication code.
func newAESReader(src io.Reader, password []byte, strength AESStrength, size int64) (io.Reader, error) {
	salt := make([]byte, strength.saltSize())
	if _, err := io.ReadFull(src, salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	pvv := make([]byte, aesPvvSize)
	if _, err := io.ReadFull(src, pvv); err != nil {
		return nil, fmt.Errorf("read pvv: %w", err)
	}

	keys := deriveAESKeys(password, salt, strength.keySize())
	if !bytes.Equal(pvv, keys.pvv) {
		return nil, errPasswordMismatch
	}

	block, err := aes.NewCipher(keys.encKey)
	if err != nil {
		return nil, err
	}

	overhead := encryptionOverhead(AES, strength)
	if size < overhead {
		return nil, fmt.Errorf("aes entry of %d bytes is too small", size)
	}

	return &aesReader{
		payload: io.LimitReader(src, size-overhead),
		src:     src,
		stream:  newWinZipCounter(block),
		mac:     hmac.New(sha1.New, keys.macKey),
	}, nil
}

func (r *aesReader) Read(p []byte) (int, error) {
	n, err := r.payload.Read(p)
	if n > 0 {
		r.mac.Write(p[:n])
		r.stream.XORKeyStream(p[:n], p[:n])
	}
	if err != io.EOF {
		return n, err
	}

	code := make([]byte, aesMacSize)
	if _, err := io.ReadFull(r.src, code); err != nil {
		return n, fmt.Errorf("read auth code: %w", err)
	}
	if !bytes.Equal(r.mac.Sum(nil)[:aesMacSize], code) {
		return n, errAuthFailed
	}
	return n, io.EOF
}

// aesExtra extracts strength and actual method from a WinZip AES extra field.
func aesExtra(extra []byte) (AESStrength, AESVersion, CompressionMethod, bool) {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if len(extra) < 4+size {
			break
		}
		if tag == AESEncryptionTag && size == 7 {
			body := extra[4 : 4+size]
			return AESStrength(body[4]),
				AESVersion(binary.LittleEndian.Uint16(body[0:2])),
				CompressionMethod(binary.LittleEndian.Uint16(body[5:7])),
				true
		}
		extra = extra[4+size:]
	}
	return 0, 0, 0, false
}

// readEntry returns the plaintext of f, decrypting and inflating as needed
// and checking the CRC when one was recorded.
func readEntry(f *zip.File, password []byte) ([]byte, error) {
	raw, err := f.OpenRaw()
	if err != nil {
		return nil, err
	}

	var src io.Reader = raw
	method := CompressionMethod(f.Method)
	if f.Flags&FlagEncrypted != 0 {
		if f.Method == winZipAESMarker {
			strength, _, actual, ok := aesExtra(f.Extra)
			if !ok {
				return nil, errors.New("missing aes extra field")
			}
			method = actual
			src, err = newAESReader(raw, password, strength, int64(f.CompressedSize64))
		} else {
			_, dosTime := timeToMsDos(f.Modified)
			src, err = newZipCryptoReader(raw, password, byte(dosTime>>8))
		}
		if err != nil {
			return nil, err
		}
	}

	compressed, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	data := compressed
	if method == Deflate {
		fr := flate.NewReader(bytes.NewReader(compressed))
		defer fr.Close()
		if data, err = io.ReadAll(fr); err != nil {
			return nil, err
		}
	}

	if f.CRC32 != 0 && crc32.ChecksumIEEE(data) != f.CRC32 {
		return nil, errChecksum
	}
	return data, nil
}

// openArchive parses a finished archive with archive/zip.
func openArchive(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}
