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
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSignCmac(t *testing.T) {
	sessionKey, err := hex.DecodeString("726d4c454e63516446695457664e5042")
	if err != nil {
		t.Fatal(err)
	}

	// Unsigned packet
	pkt, err := hex.DecodeString("fe534d42400001000000000001007f00090000000000000003000000000000000000000000000000020000007bfba3f4000000000000000000000000000000000900000048000900a1073005a0030a0100")
	if err != nil {
		t.Fatal(err)
	}

	// Expected signature
	signature, err := hex.DecodeString("041393e756a048c9092c4e52dc703719")
	if err != nil {
		t.Fatal(err)
	}

	c := &Connection{
		dialect:    DialectSmb_3_0_2,
		signingKey: kdf(sessionKey, signingLabel, signingContext, 128),
	}

	if err := c.sign(pkt); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(signature, pkt[48:64]) {
		t.Error("Fail")
	}

	if !c.verify(pkt) {
		t.Error("Fail")
	}

	// A tampered packet must not verify
	pkt[len(pkt)-1] ^= 0xff
	if c.verify(pkt) {
		t.Error("Verified a tampered packet")
	}
}

func TestSignHmac(t *testing.T) {
	sessionKey, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	if err != nil {
		t.Fatal(err)
	}

	pkt, err := hex.DecodeString("fe534d42400001000000000001007f00090000000000000003000000000000000000000000000000020000007bfba3f4000000000000000000000000000000000900000048000900a1073005a0030a0100")
	if err != nil {
		t.Fatal(err)
	}

	// SMB 2.x signs with HMAC-SHA256 over the whole packet, signature
	// field zeroed, keyed directly with the session key.
	c := &Connection{
		dialect:    DialectSmb_2_1,
		signingKey: sessionKey,
	}
	if err := c.sign(pkt); err != nil {
		t.Fatal(err)
	}

	scratch := make([]byte, len(pkt))
	copy(scratch, pkt)
	for i := 48; i < 64; i++ {
		scratch[i] = 0
	}
	h := hmac.New(sha256.New, sessionKey)
	h.Write(scratch)
	if !bytes.Equal(h.Sum(nil)[:16], pkt[48:64]) {
		t.Error("Fail")
	}

	if !c.verify(pkt) {
		t.Error("Fail")
	}
}
