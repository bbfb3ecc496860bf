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

package smb2

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// kdf is the counter-mode KDF of NIST SP 800-108 Section 5.1 with
// HMAC-SHA256 as the PRF, as required by MS-SMB2 Section 3.1.4.2.
// With L of 128 or 256 and a 256-bit PRF output there is only ever a
// single iteration, so the counter loop is flattened away.
func kdf(ki, label, context []byte, l uint32) []byte {
	if l != 128 && l != 256 {
		panic("unsupported KDF output length, must be 128 or 256")
	}

	h := hmac.New(sha256.New, ki)

	// K(1) := PRF(KI, [1] || Label || 0x00 || Context || [L])
	h.Write([]byte{0, 0, 0, 1})
	h.Write(label)
	h.Write([]byte{0x00})
	h.Write(context)
	h.Write(binary.BigEndian.AppendUint32(nil, l))

	return h.Sum(nil)[:l/8]
}
