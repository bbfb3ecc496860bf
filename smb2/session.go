// MIT License
//
// Copyright (c) 2017 stacktitan
// Copyright (c) 2023 Jimmy Fjällid for extensions beyond login for SMB 2.1
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
	"fmt"

	"github.com/nordfjell/smbclient/gss"
	"github.com/nordfjell/smbclient/smb2/crypto/cmac"
	"github.com/nordfjell/smbclient/smb2/encoder"
)

// Signing key derivation inputs for SMB 3.x. MS-SMB2 Section 3.2.5.3.
var (
	signingLabel   = []byte("SMB2AESCMAC\x00")
	signingContext = []byte("SmbSign\x00")
)

func (c *Connection) negotiateProtocol() error {
	buf, err := c.sendrecv(c.newNegotiateReq())
	if err != nil {
		return err
	}

	neg := NegotiateRes{SecurityBlob: &gss.NegTokenInit{}}
	if err := encoder.Unmarshal(buf, &neg); err != nil {
		log.Errorln(err)
		return &ProtocolError{Msg: "failed to decode negotiate response", Err: err}
	}
	if neg.Status != StatusOk {
		return &AuthError{Status: neg.Status, Err: fmt.Errorf("negotiation failed")}
	}

	switch neg.DialectRevision {
	case DialectSmb_2_1, DialectSmb_3_0_2:
	default:
		return &ProtocolError{Msg: fmt.Sprintf("server selected unsupported dialect 0x%04x", neg.DialectRevision)}
	}
	c.dialect = neg.DialectRevision
	c.securityMode = neg.SecurityMode
	c.capabilities = neg.Capabilities

	if neg.SecurityMode&SecurityModeSigningRequired == SecurityModeSigningRequired {
		c.isSigningRequired.Store(true)
	}
	if neg.Capabilities&GlobalCapLargeMTU == GlobalCapLargeMTU {
		c.supportsMultiCredit = true
	}

	c.maxReadSize = neg.MaxReadSize
	c.maxWriteSize = neg.MaxWriteSize
	c.maxTransactSize = neg.MaxTransactSize

	log.Debugf("Negotiated dialect 0x%04x, signing required: %v", c.dialect, c.isSigningRequired.Load())
	return nil
}

func (c *Connection) sessionSetup() error {
	token, err := c.opts.Initiator.InitSecContext()
	if err != nil {
		return &AuthError{Err: err}
	}

	buf, err := c.sendrecv(c.newSessionSetup1Req(gss.NewNegTokenInit(token)))
	if err != nil {
		return err
	}

	res1 := SessionSetup1Res{SecurityBlob: &gss.NegTokenResp{}}
	if err := encoder.Unmarshal(buf, &res1); err != nil {
		log.Errorln(err)
		return &ProtocolError{Msg: "failed to decode session setup response", Err: err}
	}
	switch res1.Status {
	case StatusMoreProcessingRequired, StatusOk:
	default:
		return &AuthError{Status: res1.Status}
	}

	// The server assigns the session id in the first leg of the exchange.
	c.sessionID = res1.SessionID

	authToken, err := c.opts.Initiator.AcceptSecContext(res1.SecurityBlob.ResponseToken)
	if err != nil {
		return &AuthError{Err: err}
	}

	buf, err = c.sendrecv(c.newSessionSetup2Req(gss.NewNegTokenResp(authToken)))
	if err != nil {
		return err
	}

	res2 := SessionSetup2Res{SecurityBlob: &gss.NegTokenResp{}}
	if err := encoder.Unmarshal(buf, &res2); err != nil {
		log.Errorln(err)
		return &ProtocolError{Msg: "failed to decode session setup response", Err: err}
	}
	if res2.Status != StatusOk {
		return &AuthError{Status: res2.Status}
	}

	c.sessionFlags = res2.Flags
	c.sessionKey = c.opts.Initiator.SessionKey()

	if res2.Flags&(SessionFlagIsGuest|SessionFlagIsNull) != 0 {
		// Guest and anonymous sessions have no session key to sign with.
		c.isSigningRequired.Store(false)
		c.signingKey = nil
	} else if len(c.sessionKey) > 0 {
		switch c.dialect {
		case DialectSmb_3_0, DialectSmb_3_0_2:
			c.signingKey = kdf(c.sessionKey, signingLabel, signingContext, 128)
		default:
			c.signingKey = c.sessionKey
		}
	}

	c.isAuthenticated = true
	log.Noticef("Authenticated as %s", c.opts.Initiator.Username())
	return nil
}

func (c *Connection) logoff() error {
	buf, err := c.sendrecv(c.newLogoffReq())
	if err != nil {
		return err
	}
	var res LogoffRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		return &ProtocolError{Msg: "failed to decode logoff response", Err: err}
	}
	if res.Status != StatusOk {
		return fmt.Errorf("logoff failed: %s", StatusText(res.Status))
	}
	c.isAuthenticated = false
	return nil
}

func (c *Connection) treeConnect(share string) (treeID uint32, err error) {
	buf, err := c.sendrecv(c.newTreeConnectReq(share))
	if err != nil {
		return 0, err
	}
	var res TreeConnectRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		log.Errorln(err)
		return 0, &ProtocolError{Msg: "failed to decode tree connect response", Err: err}
	}
	if res.Status != StatusOk {
		return 0, &ShareError{Share: share, Status: res.Status}
	}
	return res.TreeID, nil
}

func (c *Connection) treeDisconnect(treeID uint32) error {
	buf, err := c.sendrecv(c.newTreeDisconnectReq(treeID))
	if err != nil {
		return err
	}
	var res TreeDisconnectRes
	if err := encoder.Unmarshal(buf, &res); err != nil {
		return &ProtocolError{Msg: "failed to decode tree disconnect response", Err: err}
	}
	if res.Status != StatusOk {
		return fmt.Errorf("tree disconnect failed: %s", StatusText(res.Status))
	}
	return nil
}

// sign computes the message signature over buf with the signature field
// zeroed, sets the signed flag and writes the signature in place.
func (c *Connection) sign(buf []byte) error {
	flags := binary.LittleEndian.Uint32(buf[16:20])
	binary.LittleEndian.PutUint32(buf[16:20], flags|SMB2_FLAGS_SIGNED)
	for i := 48; i < 64; i++ {
		buf[i] = 0
	}
	sig, err := c.computeSignature(buf)
	if err != nil {
		return err
	}
	copy(buf[48:64], sig)
	return nil
}

// verify checks a received message's signature. Callers must only pass
// messages carrying the signed flag.
func (c *Connection) verify(buf []byte) bool {
	sig := make([]byte, 16)
	copy(sig, buf[48:64])

	scratch := make([]byte, len(buf))
	copy(scratch, buf)
	for i := 48; i < 64; i++ {
		scratch[i] = 0
	}
	computed, err := c.computeSignature(scratch)
	if err != nil {
		log.Errorln(err)
		return false
	}
	return hmac.Equal(sig, computed)
}

func (c *Connection) computeSignature(buf []byte) ([]byte, error) {
	switch c.dialect {
	case DialectSmb_3_0, DialectSmb_3_0_2:
		h, err := cmac.New(c.signingKey)
		if err != nil {
			return nil, err
		}
		h.Write(buf)
		return h.Sum(nil)[:16], nil
	default:
		h := hmac.New(sha256.New, c.signingKey)
		h.Write(buf)
		return h.Sum(nil)[:16], nil
	}
}
