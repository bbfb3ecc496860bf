// Package gss implements the minimal SPNEGO (RFC 4178) framing used to carry
// NTLMSSP tokens through SMB2 session setup.
package gss

import (
	"encoding/asn1"

	"github.com/geoffgarside/ber"
	"github.com/jfjallid/golog"

	"github.com/nordfjell/smbclient/smb2/encoder"
)

var log = golog.Get("github.com/nordfjell/smbclient/gss")

var (
	SpnegoOid          = asn1.ObjectIdentifier([]int{1, 3, 6, 1, 5, 5, 2})
	NtLmSSPMechTypeOid = asn1.ObjectIdentifier([]int{1, 3, 6, 1, 4, 1, 311, 2, 2, 10})
)

// Negotiation states carried in NegTokenResp.State.
const (
	StateAcceptCompleted  = 0
	StateAcceptIncomplete = 1
	StateReject           = 2
	StateRequestMic       = 3
)

type NegTokenInitData struct {
	MechTypes    []asn1.ObjectIdentifier `asn1:"explicit,tag:0"`
	ReqFlags     asn1.BitString          `asn1:"explicit,optional,omitempty,tag:1"`
	MechToken    []byte                  `asn1:"explicit,optional,omitempty,tag:2"`
	MechTokenMIC []byte                  `asn1:"explicit,optional,omitempty,tag:3"`
}

type NegTokenInit struct {
	OID  asn1.ObjectIdentifier
	Data NegTokenInitData `asn1:"explicit"`
}

type NegTokenResp struct {
	State         asn1.Enumerated       `asn1:"explicit,optional,omitempty,tag:0"`
	SupportedMech asn1.ObjectIdentifier `asn1:"explicit,optional,omitempty,tag:1"`
	ResponseToken []byte                `asn1:"explicit,optional,omitempty,tag:2"`
	MechListMIC   []byte                `asn1:"explicit,optional,omitempty,tag:3"`
}

// NewNegTokenInit wraps an initial NTLMSSP token for session setup.
func NewNegTokenInit(token []byte) *NegTokenInit {
	return &NegTokenInit{
		OID: SpnegoOid,
		Data: NegTokenInitData{
			MechTypes: []asn1.ObjectIdentifier{NtLmSSPMechTypeOid},
			MechToken: token,
		},
	}
}

// NewNegTokenResp wraps a continuation NTLMSSP token.
func NewNegTokenResp(token []byte) *NegTokenResp {
	return &NegTokenResp{
		State:         StateAcceptIncomplete,
		ResponseToken: token,
	}
}

// gsswrapped forces the asn1 package to emit an outer explicit sequence tag
// around a NegTokenResp.
type gsswrapped struct{ G interface{} }

func (n *NegTokenInit) MarshalBinary(meta *encoder.Metadata) ([]byte, error) {
	buf, err := asn1.Marshal(*n)
	if err != nil {
		log.Criticalln(err)
		return nil, err
	}

	// asn1 marshals structs with a sequence tag (0x30). GSS-API requires the
	// application tag (0x60) on the InitialContextToken.
	buf[0] = 0x60
	return buf, nil
}

func (n *NegTokenInit) UnmarshalBinary(buf []byte, meta *encoder.Metadata) error {
	data := NegTokenInit{}
	// Servers are allowed to send BER here, which encoding/asn1 rejects.
	if _, err := ber.UnmarshalWithParams(buf, &data, "application"); err != nil {
		log.Debugln(err)
		return err
	}
	*n = data
	return nil
}

func (r *NegTokenResp) MarshalBinary(meta *encoder.Metadata) ([]byte, error) {
	wrapped := &gsswrapped{*r}
	buf, err := asn1.Marshal(*wrapped)
	if err != nil {
		log.Criticalln(err)
		return nil, err
	}
	// NegTokenResp is carried under context tag 1 of the NegotiationToken
	// choice rather than a plain sequence.
	buf[0] = 0xa1
	return buf, nil
}

func (r *NegTokenResp) UnmarshalBinary(buf []byte, meta *encoder.Metadata) error {
	data := NegTokenResp{}
	if _, err := ber.UnmarshalWithParams(buf, &data, "explicit,tag:1"); err != nil {
		log.Criticalln(err)
		return err
	}
	*r = data
	return nil
}
