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
	"strings"
	"testing"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

// challengeMessage serializes a CHALLENGE_MESSAGE carrying the given AV pairs.
func challengeMessage(t *testing.T, pairs AvPairSlice) []byte {
	t.Helper()
	chall := newChallenge()
	chall.NegotiateFlags = FlgNegRequestTarget | FlgNegTargetInfo | FlgNegUnicode
	chall.TargetName = encoder.ToUnicode("Domain")
	chall.TargetInfo = &pairs
	buf, err := encoder.Marshal(chall)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestAuthenticate(t *testing.T) {
	c := &Client{User: "User", Password: "Password"}
	if _, err := c.Negotiate(); err != nil {
		t.Fatal(err)
	}

	cmsg := challengeMessage(t, AvPairSlice{
		{AvID: MsvAvNbDomainName, Value: encoder.ToUnicode("Domain")},
		{AvID: MsvAvFlags, Value: []byte{0x00, 0x00, 0x00, 0x00}},
		{AvID: MsvAvEOL},
	})
	auth, err := c.Authenticate(cmsg)
	if err != nil {
		t.Fatal(err)
	}
	if len(auth) == 0 {
		t.Fatal("Empty authenticate message")
	}
	if c.SessionKey() == nil {
		t.Error("No session key after authentication")
	}
}

func TestAuthenticateTruncatedAvPair(t *testing.T) {
	cases := []struct {
		name  string
		pairs AvPairSlice
	}{
		{
			"short flags",
			AvPairSlice{
				{AvID: MsvAvFlags, Value: []byte{0x02, 0x00}},
				{AvID: MsvAvEOL},
			},
		},
		{
			"short timestamp",
			AvPairSlice{
				{AvID: MsvAvTimestamp, Value: []byte{0x01, 0x02, 0x03, 0x04}},
				{AvID: MsvAvEOL},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Client{User: "User", Password: "Password"}
			if _, err := c.Negotiate(); err != nil {
				t.Fatal(err)
			}
			_, err := c.Authenticate(challengeMessage(t, tc.pairs))
			if err == nil {
				t.Fatal("Expected an error for a truncated av pair")
			}
			if !strings.Contains(err.Error(), "truncated") {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}
