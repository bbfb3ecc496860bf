// Copyright (c) 2016 Hiroshi Ioka. All rights reserved.
// Copyright (c) 2023 Jimmy Fjällid for derivative changes
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are
// met:
//
//   - Redistributions of source code must retain the above copyright
//
// notice, this list of conditions and the following disclaimer.
//   - Redistributions in binary form must reproduce the above
//
// copyright notice, this list of conditions and the following disclaimer
// in the documentation and/or other materials provided with the
// distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
// "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
// LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
// A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
// OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
// LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
// DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
// THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
// (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
package ntlmssp

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jfjallid/golog"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

var le = binary.LittleEndian

var log = golog.Get("github.com/nordfjell/smbclient/ntlmssp")

var version = []byte{
	0: WindowsMajorVersion10,
	1: WindowsMinorVersion0,
	7: NTLMSSPRevisionW2K3,
}

// Client holds NTLMv2 credentials and drives the three-message exchange.
// Either Password or Hash (the NT hash, for pass-the-hash) must be set.
type Client struct {
	User        string
	Password    string
	Hash        []byte
	Domain      string
	Workstation string
	TargetSPN   string

	neg        *Negotiate
	sessionKey []byte
}

// Negotiate produces the NEGOTIATE_MESSAGE opening the exchange.
func (c *Client) Negotiate() ([]byte, error) {
	req := Negotiate{
		Header: Header{
			Signature:   []byte(Signature),
			MessageType: TypeNtLmNegotiate,
		},
		NegotiateFlags: FlgNeg56 |
			FlgNeg128 |
			FlgNegKeyExch |
			FlgNegTargetInfo |
			FlgNegExtendedSessionSecurity |
			FlgNegNtLm |
			FlgNegSign |
			FlgNegRequestTarget |
			FlgNegUnicode |
			FlgNegVersion,
		Version: le.Uint64(version),
	}

	if c.Domain != "" {
		req.DomainName = []byte(c.Domain)
		req.NegotiateFlags |= FlgNegOEMDomainSupplied
	}
	if c.Workstation != "" {
		req.Workstation = []byte(c.Workstation)
		req.NegotiateFlags |= FlgNegOEMWorkstationSupplied
	}

	c.neg = &req
	return encoder.Marshal(req)
}

// Authenticate consumes the server's CHALLENGE_MESSAGE and produces the
// AUTHENTICATE_MESSAGE completing the exchange.
func (c *Client) Authenticate(cmsg []byte) ([]byte, error) {
	if c.neg == nil {
		return nil, fmt.Errorf("authenticate called before negotiate")
	}
	if len(cmsg) < 48 {
		return nil, fmt.Errorf("challenge message is too short")
	}

	chall := newChallenge()
	if err := encoder.Unmarshal(cmsg, &chall); err != nil {
		log.Errorln(err)
		return nil, err
	}
	if !bytes.Equal(chall.Signature, []byte(Signature)) {
		return nil, fmt.Errorf("invalid challenge signature")
	}
	if chall.MessageType != TypeNtLmChallenge {
		return nil, fmt.Errorf("invalid challenge message type")
	}

	flags := c.neg.NegotiateFlags & chall.NegotiateFlags
	if flags&FlgNegRequestTarget == 0 || flags&FlgNegTargetInfo == 0 {
		return nil, fmt.Errorf("server rejected required negotiate flags")
	}
	if chall.TargetInfo == nil {
		return nil, fmt.Errorf("missing target info")
	}

	var domain []byte
	if c.Domain != "" {
		domain = encoder.ToUnicode(c.Domain)
	} else {
		domain = chall.TargetName
	}
	domainstr, err := encoder.FromUnicodeString(domain)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}

	clientChallenge := make([]byte, 8)
	if _, err := rand.Read(clientChallenge); err != nil {
		return nil, err
	}
	serverChallenge := serverChallengeBytes(chall.ServerChallenge)

	// Rebuild the server's AV pairs with the MIC-present flag set, an
	// explicit channel binding and target name, per MS-NLMP 3.1.5.1.2.
	w := new(bytes.Buffer)
	flagsFound := false
	channelBindingsFound := false
	timestampFound := false
	timestamp := make([]byte, 8)
	for _, av := range *chall.TargetInfo {
		switch av.AvID {
		case MsvAvEOL:
			continue
		case MsvAvFlags:
			if len(av.Value) < 4 {
				return nil, fmt.Errorf("truncated MsvAvFlags value of %d bytes", len(av.Value))
			}
			flagsFound = true
			le.PutUint32(av.Value, le.Uint32(av.Value)|0x02)
		case MsvAvChannelBindings:
			channelBindingsFound = true
		case MsvAvTimestamp:
			if len(av.Value) < 8 {
				return nil, fmt.Errorf("truncated MsvAvTimestamp value of %d bytes", len(av.Value))
			}
			timestampFound = true
			copy(timestamp, av.Value[:8])
		}
		binary.Write(w, le, av.AvID)
		binary.Write(w, le, av.AvLen)
		w.Write(av.Value)
	}

	if !timestampFound {
		// Convert to Windows FILETIME, 100ns ticks since 1601.
		ft := uint64(time.Now().UnixNano())/100 + 116444736000000000
		le.PutUint64(timestamp, ft)
	}
	if !flagsFound {
		binary.Write(w, le, MsvAvFlags)
		binary.Write(w, le, uint16(4))
		binary.Write(w, le, uint32(0x02))
	}
	if !channelBindingsFound {
		binary.Write(w, le, MsvAvChannelBindings)
		binary.Write(w, le, uint16(16))
		w.Write(make([]byte, 16))
	}
	binary.Write(w, le, MsvAvTargetName)
	if c.TargetSPN != "" {
		spn := encoder.ToUnicode(c.TargetSPN)
		binary.Write(w, le, uint16(len(spn)))
		w.Write(spn)
	} else {
		binary.Write(w, le, uint16(0))
	}
	// Terminating MsvAvEOL
	w.Write(make([]byte, 4))

	var nthash []byte
	if len(c.Hash) > 0 {
		nthash = Ntowfv2Hash(c.User, domainstr, c.Hash)
	} else {
		nthash = Ntowfv2(c.Password, c.User, domainstr)
	}

	response := ComputeResponseNTLMv2(nthash, clientChallenge, serverChallenge, timestamp, w.Bytes())

	// With a server timestamp present the LM response must be Z(24).
	var lmChallengeResponse []byte
	if !timestampFound {
		h := hmac.New(md5.New, nthash)
		h.Write(serverChallenge)
		h.Write(clientChallenge)
		lmChallengeResponse = append(h.Sum(nil), clientChallenge...)
	} else {
		lmChallengeResponse = make([]byte, 24)
	}

	auth := Authenticate{
		Header: Header{
			Signature:   []byte(Signature),
			MessageType: TypeNtLmAuthenticate,
		},
		NegotiateFlags:      flags,
		Version:             c.neg.Version,
		MIC:                 make([]byte, 16),
		DomainName:          domain,
		UserName:            encoder.ToUnicode(c.User),
		Workstation:         encoder.ToUnicode(c.Workstation),
		LmChallengeResponse: lmChallengeResponse,
		NtChallengeResponse: response,
	}

	h := hmac.New(md5.New, nthash)
	h.Write(response[:16])
	sessionBaseKey := h.Sum(nil)

	// For NTLMv2 the key exchange key is the session base key.
	keyExchangeKey := sessionBaseKey

	if flags&FlgNegKeyExch != 0 {
		exportedSessionKey := make([]byte, 16)
		if _, err := rand.Read(exportedSessionKey); err != nil {
			return nil, err
		}
		cipher, err := rc4.NewCipher(keyExchangeKey)
		if err != nil {
			return nil, err
		}
		encryptedRandomSessionKey := make([]byte, 16)
		cipher.XORKeyStream(encryptedRandomSessionKey, exportedSessionKey)
		auth.EncryptedRandomSessionKey = encryptedRandomSessionKey
		c.sessionKey = exportedSessionKey
	} else {
		c.sessionKey = keyExchangeKey
	}

	buf, err := encoder.Marshal(auth)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}

	// The MIC covers all three messages with the MIC field zeroed.
	h = hmac.New(md5.New, c.sessionKey)
	nmsgBuf, err := encoder.Marshal(c.neg)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}
	h.Write(nmsgBuf)
	h.Write(cmsg)
	h.Write(buf)
	copy(buf[micOffset:micOffset+16], h.Sum(nil))

	return buf, nil
}

// SessionKey returns the exported session key once Authenticate has run.
func (c *Client) SessionKey() []byte {
	return c.sessionKey
}
