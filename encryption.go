// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptionMethod represents the encryption algorithm used for entry protection.
type EncryptionMethod uint16

// Supported encryption methods
const (
	NotEncrypted EncryptionMethod = 0 // No encryption - entry stored in plaintext
	ZipCrypto    EncryptionMethod = 1 // Legacy encryption. Vulnerable to known plaintext attacks
	AES          EncryptionMethod = 2 // WinZip AES encryption
)

func (e EncryptionMethod) String() string {
	switch e {
	case NotEncrypted:
		return "none"
	case ZipCrypto:
		return "zipcrypto"
	case AES:
		return "aes"
	default:
		return fmt.Sprintf("encryption(%d)", uint16(e))
	}
}

// AESStrength is the key strength code stored in the AES extra field.
// The zero value selects AES256.
type AESStrength uint8

const (
	AES128 AESStrength = 0x01
	AES256 AESStrength = 0x03
)

// keySize returns the AES key length in bytes. The salt is half as long.
func (s AESStrength) keySize() int {
	switch s {
	case AES128:
		return 16
	case AES256:
		return 32
	default:
		return 0
	}
}

func (s AESStrength) saltSize() int { return s.keySize() / 2 }

func (s AESStrength) String() string {
	switch s {
	case AES128:
		return "aes-128"
	case AES256:
		return "aes-256"
	default:
		return fmt.Sprintf("strength(%d)", uint8(s))
	}
}

// AESVersion is the WinZip AES format version. AE-2 entries record a zero CRC
// and rely on the authentication code alone. The zero value selects AE2.
type AESVersion uint16

const (
	AE1 AESVersion = 0x0001
	AE2 AESVersion = 0x0002
)

// AES constants
const (
	aesMacSize        = 10   // HMAC-SHA1 truncated to 10 bytes
	aesPvvSize        = 2    // Password Verification Value
	aesKeyIterations  = 1000 // PBKDF2 rounds mandated by the WinZip format
	zipCryptoHeaderSz = 12   // Random header in front of ZipCrypto data
)

// encryptor is the per-entry encryption stage. Close writes any trailer
// (the AES authentication code) to the underlying writer.
type encryptor interface {
	io.Writer
	Close() error
}

// plainEncryptor forwards data unchanged for unencrypted entries.
type plainEncryptor struct {
	dest io.Writer
}

func (p plainEncryptor) Write(b []byte) (int, error) { return p.dest.Write(b) }

func (plainEncryptor) Close() error { return nil }

// encryptionOverhead returns the number of bytes an encryption method adds
// around the compressed data.
func encryptionOverhead(method EncryptionMethod, strength AESStrength) int64 {
	switch method {
	case ZipCrypto:
		return zipCryptoHeaderSz
	case AES:
		return int64(strength.saltSize() + aesPvvSize + aesMacSize)
	default:
		return 0
	}
}

// zipCryptoWriter implements the legacy PKWARE encryption.
type zipCryptoWriter struct {
	dest   io.Writer
	cipher *zipCipher
	buf    []byte
}

// newZipCryptoWriter writes the 12 byte encryption header to dest and returns
// a writer encrypting everything after it. The last header byte is checkByte,
// which readers compare against to verify the password.
func newZipCryptoWriter(dest io.Writer, password []byte, checkByte byte, rnd io.Reader) (encryptor, error) {
	cipher := newZipCipher(password)

	header := make([]byte, zipCryptoHeaderSz)
	if _, err := io.ReadFull(rnd, header[:zipCryptoHeaderSz-1]); err != nil {
		return nil, fmt.Errorf("crypto rand: %w", err)
	}
	header[zipCryptoHeaderSz-1] = checkByte
	cipher.Encrypt(header)

	if _, err := dest.Write(header); err != nil {
		return nil, fmt.Errorf("write crypto header: %w", err)
	}

	return &zipCryptoWriter{
		dest:   dest,
		cipher: cipher,
	}, nil
}

func (w *zipCryptoWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Encrypt a copy so the caller's buffer is left untouched
	if cap(w.buf) < len(p) {
		w.buf = make([]byte, len(p))
	}
	buf := w.buf[:len(p)]
	copy(buf, p)
	w.cipher.Encrypt(buf)

	return w.dest.Write(buf)
}

func (w *zipCryptoWriter) Close() error { return nil }

const cipherMagic = 134775813

// zipCipher implements the legacy ZipCrypto algorithm.
type zipCipher struct {
	k0, k1, k2 uint32
}

func newZipCipher(password []byte) *zipCipher {
	z := &zipCipher{
		k0: 0x12345678,
		k1: 0x23456789,
		k2: 0x34567890,
	}
	for _, b := range password {
		z.updateKeys(b)
	}
	return z
}

func (z *zipCipher) updateKeys(b byte) {
	// Key0: crc32(key0, b)
	z.k0 = crc32.IEEETable[(z.k0^uint32(b))&0xff] ^ (z.k0 >> 8)

	// Key1: (key1 + (key0 & 0xff)) * 134775813 + 1
	z.k1 = z.k1 + (z.k0 & 0xff)
	z.k1 = z.k1*cipherMagic + 1

	// Key2: crc32(key2, key1 >> 24)
	z.k2 = crc32.IEEETable[(z.k2^uint32(byte(z.k1>>24)))&0xff] ^ (z.k2 >> 8)
}

func (z *zipCipher) magicByte() byte {
	t := z.k2 | 2
	return byte((t * (t ^ 1)) >> 8)
}

func (z *zipCipher) Encrypt(buf []byte) {
	for i, b := range buf {
		c := b ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = c
	}
}

// aesWriter implements WinZip AES encryption.
type aesWriter struct {
	dest   io.Writer
	stream *winZipCounter
	mac    hash.Hash
	buf    []byte
}

// newAESWriter writes the salt and password verification value to dest and
// returns a writer that encrypts and authenticates everything after them.
func newAESWriter(dest io.Writer, password []byte, strength AESStrength, rnd io.Reader) (encryptor, error) {
	salt := make([]byte, strength.saltSize())
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("aes rand: %w", err)
	}

	keys := deriveAESKeys(password, salt, strength.keySize())

	if _, err := dest.Write(salt); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	if _, err := dest.Write(keys.pvv); err != nil {
		return nil, fmt.Errorf("write pvv: %w", err)
	}

	block, err := aes.NewCipher(keys.encKey)
	if err != nil {
		return nil, err
	}

	return &aesWriter{
		dest:   dest,
		stream: newWinZipCounter(block),
		mac:    hmac.New(sha1.New, keys.macKey),
	}, nil
}

func (w *aesWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if cap(w.buf) < len(p) {
		w.buf = make([]byte, len(p))
	}
	buf := w.buf[:len(p)]
	w.stream.XORKeyStream(buf, p)

	// WinZip AES: Encrypt-then-MAC (HMAC is computed on ciphertext)
	w.mac.Write(buf)

	return w.dest.Write(buf)
}

// Close appends the 10-byte authentication code.
func (w *aesWriter) Close() error {
	sum := w.mac.Sum(nil)
	if _, err := w.dest.Write(sum[:aesMacSize]); err != nil {
		return fmt.Errorf("write auth code: %w", err)
	}
	return nil
}

// aesKeys holds keys derived from the password.
type aesKeys struct {
	encKey []byte // AES encryption key
	macKey []byte // HMAC signing key
	pvv    []byte // Password verification value
}

// deriveAESKeys generates keys using PBKDF2-HMAC-SHA1 (RFC 2898).
func deriveAESKeys(password, salt []byte, keySize int) aesKeys {
	dk := pbkdf2.Key(password, salt, aesKeyIterations, 2*keySize+aesPvvSize, sha1.New)

	return aesKeys{
		encKey: dk[:keySize],
		macKey: dk[keySize : 2*keySize],
		pvv:    dk[2*keySize : 2*keySize+aesPvvSize],
	}
}

// winZipCounter implements cipher.Stream for WinZip AES-CTR mode.
// Note: WinZip uses Little Endian increment for the 128-bit counter,
// whereas standard Go cipher.NewCTR uses Big Endian.
type winZipCounter struct {
	block   cipher.Block
	counter [aes.BlockSize]byte
	buffer  [aes.BlockSize]byte
	pos     int
}

var _ cipher.Stream = (*winZipCounter)(nil)

func newWinZipCounter(block cipher.Block) *winZipCounter {
	c := &winZipCounter{block: block}
	c.counter[0] = 1 // Initial counter value
	return c
}

func (c *winZipCounter) XORKeyStream(dst, src []byte) {
	for i := range src {
		if c.pos == 0 {
			// Encrypt counter to generate keystream block
			c.block.Encrypt(c.buffer[:], c.counter[:])

			// Increment counter (Little Endian 128-bit)
			for j := 0; j < aes.BlockSize; j++ {
				c.counter[j]++
				if c.counter[j] != 0 {
					break // No carry, stop
				}
			}
		}
		dst[i] = src[i] ^ c.buffer[c.pos]
		c.pos = (c.pos + 1) % aes.BlockSize
	}
}
