// MIT License
//
// # Copyright (c) 2017 stacktitan
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
package ntlmssp

import (
	"crypto/hmac"
	"crypto/md5"
	"strings"

	"golang.org/x/crypto/md4"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// Ntowfv1 is the MD4 digest of the UTF-16LE password. MS-NLMP Section 3.3.1.
func Ntowfv1(pass string) []byte {
	hash := md4.New()
	hash.Write(encoder.ToUnicode(pass))
	return hash.Sum(nil)
}

// Ntowfv2 is HMAC-MD5 over uppercase(user)+domain keyed with the v1 hash.
// MS-NLMP Section 3.3.2.
func Ntowfv2(pass, user, domain string) []byte {
	return Ntowfv2Hash(user, domain, Ntowfv1(pass))
}

// Ntowfv2Hash computes the v2 hash from an already-computed v1 hash, used
// for pass-the-hash style credentials.
func Ntowfv2Hash(user, domain string, hash []byte) []byte {
	h := hmac.New(md5.New, hash)
	h.Write(encoder.ToUnicode(strings.ToUpper(user) + domain))
	return h.Sum(nil)
}

// ComputeResponseNTLMv2 builds the NTv2 challenge response: the NTProofStr
// followed by the temp blob it was computed over. MS-NLMP Section 3.3.2.
func ComputeResponseNTLMv2(nthash, clientChallenge, serverChallenge, timestamp, avpairs []byte) []byte {
	temp := make([]byte, 0, 28+len(avpairs)+4)
	temp = append(temp, 1, 1, 0, 0, 0, 0, 0, 0)
	temp = append(temp, timestamp...)
	temp = append(temp, clientChallenge...)
	temp = append(temp, 0, 0, 0, 0)
	temp = append(temp, avpairs...)
	temp = append(temp, 0, 0, 0, 0) // Trailing Z(4)

	h := hmac.New(md5.New, nthash)
	h.Write(serverChallenge)
	h.Write(temp)
	ntproof := h.Sum(nil)
	return append(ntproof, temp...)
}
