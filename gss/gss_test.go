package gss

import (
	"bytes"
	"testing"
)

func TestNegTokenInitRoundTrip(t *testing.T) {
	token := []byte("NTLMSSP\x00fake-negotiate")
	init := NewNegTokenInit(token)

	buf, err := init.MarshalBinary(nil)
	if err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0x60 {
		t.Fatalf("Expected application tag 0x60, got 0x%02x", buf[0])
	}

	var parsed NegTokenInit
	if err := parsed.UnmarshalBinary(buf, nil); err != nil {
		t.Fatal(err)
	}
	if !parsed.OID.Equal(SpnegoOid) {
		t.Error("Wrong mechanism oid")
	}
	if len(parsed.Data.MechTypes) != 1 || !parsed.Data.MechTypes[0].Equal(NtLmSSPMechTypeOid) {
		t.Error("Wrong mech type list")
	}
	if !bytes.Equal(parsed.Data.MechToken, token) {
		t.Error("Mech token did not survive the round trip")
	}
}

func TestNegTokenRespRoundTrip(t *testing.T) {
	token := []byte("NTLMSSP\x00fake-authenticate")
	resp := NewNegTokenResp(token)

	buf, err := resp.MarshalBinary(nil)
	if err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0xa1 {
		t.Fatalf("Expected context tag 0xa1, got 0x%02x", buf[0])
	}

	var parsed NegTokenResp
	if err := parsed.UnmarshalBinary(buf, nil); err != nil {
		t.Fatal(err)
	}
	if parsed.State != StateAcceptIncomplete {
		t.Error("Wrong negotiation state")
	}
	if !bytes.Equal(parsed.ResponseToken, token) {
		t.Error("Response token did not survive the round trip")
	}
}
