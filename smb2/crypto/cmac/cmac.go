// MIT License
//
// # Copyright (c) 2023 Jimmy Fjällid
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package cmac implements AES-128-CMAC (RFC 4493) behind the hash.Hash
// interface, as required for SMB 3.x message signatures.
package cmac

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"hash"
)

const blockSize = 16

type cmac struct {
	k1  []byte
	k2  []byte
	x   []byte // Running CBC-MAC state
	c   cipher.Block
	pos int
}

// New returns a streaming AES-CMAC over a 128-bit key.
func New(key []byte) (hash.Hash, error) {
	if len(key) != blockSize {
		return nil, fmt.Errorf("invalid key size, only 128 bit keys are supported")
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	k1, k2 := generateSubkeys(c)
	return &cmac{
		k1: k1,
		k2: k2,
		x:  make([]byte, blockSize),
		c:  c,
	}, nil
}

func (m *cmac) Write(data []byte) (int, error) {
	// XOR input into the running block, encrypting each time a block fills.
	// The final (possibly partial) block is kept unencrypted for Sum.
	for _, b := range data {
		if m.pos >= blockSize {
			m.c.Encrypt(m.x, m.x)
			m.pos = 0
		}
		m.x[m.pos] ^= b
		m.pos++
	}
	return len(data), nil
}

func (m *cmac) Sum(buf []byte) []byte {
	digest := make([]byte, blockSize)
	copy(digest, m.x)

	if m.pos >= blockSize {
		xorBlock(digest, m.k1)
	} else {
		// Pad the partial block; only the 0x80 bit affects the xor.
		digest[m.pos] ^= 0x80
		xorBlock(digest, m.k2)
	}

	m.c.Encrypt(digest, digest)
	return append(buf, digest...)
}

func (m *cmac) Size() int { return blockSize }

func (m *cmac) BlockSize() int { return blockSize }

func (m *cmac) Reset() {
	for i := range m.x {
		m.x[i] = 0
	}
	m.pos = 0
}

// generateSubkeys derives K1 and K2 per RFC 4493 Section 2.3: encrypt the
// zero block, then conditionally shift and fold in the Rb constant.
func generateSubkeys(c cipher.Block) (k1, k2 []byte) {
	l := make([]byte, blockSize)
	c.Encrypt(l, l)

	k1 = leftshift(l)
	if (l[0] & 0x80) != 0 {
		k1[blockSize-1] ^= 0x87
	}

	k2 = leftshift(k1)
	if (k1[0] & 0x80) != 0 {
		k2[blockSize-1] ^= 0x87
	}
	return k1, k2
}

func xorBlock(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

func leftshift(input []byte) []byte {
	output := make([]byte, len(input))
	overflow := byte(0)
	for i := len(input) - 1; i >= 0; i-- {
		output[i] = input[i]<<1 | overflow
		overflow = input[i] >> 7
	}
	return output
}
