// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"bytes"
	"crypto/aes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipCipher_RoundTrip(t *testing.T) {
	plain := []byte("The quick brown fox jumps over the lazy dog")
	buf := bytes.Clone(plain)

	newZipCipher([]byte("password")).Encrypt(buf)
	assert.NotEqual(t, plain, buf)

	newZipCipher([]byte("password")).Decrypt(buf)
	assert.Equal(t, plain, buf)
}

func TestZipCryptoWriter(t *testing.T) {
	buf := new(bytes.Buffer)
	plain := []byte("legacy stream cipher")

	enc, err := newZipCryptoWriter(buf, []byte("pw"), 0xA5, seededRand(7))
	require.NoError(t, err)
	assert.Equal(t, zipCryptoHeaderSz, buf.Len())

	input := bytes.Clone(plain)
	_, err = enc.Write(input)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	assert.Equal(t, plain, input, "caller buffer must not be modified")
	assert.Equal(t, zipCryptoHeaderSz+len(plain), buf.Len())

	r, err := newZipCryptoReader(bytes.NewReader(buf.Bytes()), []byte("pw"), 0xA5)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestZipCryptoWriter_RandFailure(t *testing.T) {
	_, err := newZipCryptoWriter(io.Discard, []byte("pw"), 0, failReader{err: io.ErrUnexpectedEOF})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestAESStrength(t *testing.T) {
	assert.Equal(t, 16, AES128.keySize())
	assert.Equal(t, 8, AES128.saltSize())
	assert.Equal(t, 32, AES256.keySize())
	assert.Equal(t, 16, AES256.saltSize())
	assert.Zero(t, AESStrength(2).keySize())
	assert.Equal(t, "aes-256", AES256.String())
	assert.Equal(t, "strength(2)", AESStrength(2).String())
}

func TestEncryptionOverhead(t *testing.T) {
	assert.Zero(t, encryptionOverhead(NotEncrypted, 0))
	assert.Equal(t, int64(12), encryptionOverhead(ZipCrypto, 0))
	assert.Equal(t, int64(8+2+10), encryptionOverhead(AES, AES128))
	assert.Equal(t, int64(16+2+10), encryptionOverhead(AES, AES256))
}

func TestDeriveAESKeys(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, 16)

	keys := deriveAESKeys([]byte("password"), salt, 32)
	assert.Len(t, keys.encKey, 32)
	assert.Len(t, keys.macKey, 32)
	assert.Len(t, keys.pvv, aesPvvSize)
	assert.NotEqual(t, keys.encKey, keys.macKey)

	again := deriveAESKeys([]byte("password"), salt, 32)
	assert.Equal(t, keys, again)

	other := deriveAESKeys([]byte("password"), bytes.Repeat([]byte{0x43}, 16), 32)
	assert.NotEqual(t, keys.encKey, other.encKey)

	short := deriveAESKeys([]byte("password"), salt[:8], 16)
	assert.Len(t, short.encKey, 16)
	assert.Len(t, short.macKey, 16)
}

func TestWinZipCounter(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 16)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	// Keystream blocks are AES(counter) with a little-endian counter from 1
	want := make([]byte, 2*aes.BlockSize)
	var ctr [aes.BlockSize]byte
	ctr[0] = 1
	block.Encrypt(want[:aes.BlockSize], ctr[:])
	ctr[0] = 2
	block.Encrypt(want[aes.BlockSize:], ctr[:])

	got := make([]byte, 2*aes.BlockSize)
	stream := newWinZipCounter(block)
	// Split unevenly to cross the block boundary mid-call
	stream.XORKeyStream(got[:5], got[:5])
	stream.XORKeyStream(got[5:], got[5:])
	assert.Equal(t, want, got)
}

func TestWinZipCounter_Carry(t *testing.T) {
	block, err := aes.NewCipher(make([]byte, 16))
	require.NoError(t, err)

	stream := newWinZipCounter(block)
	stream.counter[0] = 0xff
	stream.XORKeyStream(make([]byte, 1), make([]byte, 1))

	assert.Equal(t, byte(0x00), stream.counter[0])
	assert.Equal(t, byte(0x01), stream.counter[1])
}

func TestAESWriter(t *testing.T) {
	for _, strength := range []AESStrength{AES128, AES256} {
		t.Run(strength.String(), func(t *testing.T) {
			buf := new(bytes.Buffer)
			plain := bytes.Repeat([]byte("authenticated "), 10)

			enc, err := newAESWriter(buf, []byte("pw"), strength, seededRand(3))
			require.NoError(t, err)
			assert.Equal(t, strength.saltSize()+aesPvvSize, buf.Len())

			input := bytes.Clone(plain)
			_, err = enc.Write(input)
			require.NoError(t, err)
			require.NoError(t, enc.Close())
			assert.Equal(t, plain, input)

			size := int64(buf.Len())
			assert.Equal(t, int64(len(plain))+encryptionOverhead(AES, strength), size)

			r, err := newAESReader(bytes.NewReader(buf.Bytes()), []byte("pw"), strength, size)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, plain, got)

			tampered := bytes.Clone(buf.Bytes())
			tampered[len(tampered)-1] ^= 1
			r, err = newAESReader(bytes.NewReader(tampered), []byte("pw"), strength, size)
			require.NoError(t, err)
			_, err = io.ReadAll(r)
			assert.ErrorIs(t, err, errAuthFailed)
		})
	}
}

func TestAESWriter_SinkFailure(t *testing.T) {
	errSink := io.ErrClosedPipe
	_, err := newAESWriter(&failWriter{limit: 4, err: errSink}, []byte("pw"), AES256, seededRand(3))
	assert.ErrorIs(t, err, errSink)
}
