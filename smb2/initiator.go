// MIT License
//
// Copyright (c) 2023 Jimmy Fjällid
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
	"github.com/nordfjell/smbclient/ntlmssp"
)

// Initiator produces the security tokens exchanged during session setup.
type Initiator interface {
	InitSecContext() ([]byte, error)               // Opening token
	AcceptSecContext(token []byte) ([]byte, error) // Reply to the server's challenge
	SessionKey() []byte
	Username() string
}

var _ Initiator = (*NTLMInitiator)(nil)

// NTLMInitiator authenticates with NTLMv2. Either Password or Hash (the raw
// NT hash) must be provided.
type NTLMInitiator struct {
	User        string
	Password    string
	Hash        []byte
	Domain      string
	Workstation string
	TargetSPN   string

	client *ntlmssp.Client
}

func (i *NTLMInitiator) InitSecContext() ([]byte, error) {
	i.client = &ntlmssp.Client{
		User:        i.User,
		Password:    i.Password,
		Hash:        i.Hash,
		Domain:      i.Domain,
		Workstation: i.Workstation,
		TargetSPN:   i.TargetSPN,
	}
	return i.client.Negotiate()
}

func (i *NTLMInitiator) AcceptSecContext(token []byte) ([]byte, error) {
	return i.client.Authenticate(token)
}

func (i *NTLMInitiator) SessionKey() []byte {
	if i.client == nil {
		return nil
	}
	return i.client.SessionKey()
}

func (i *NTLMInitiator) Username() string {
	return i.User
}
