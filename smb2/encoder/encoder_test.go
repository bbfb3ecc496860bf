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
package encoder

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type taggedMessage struct {
	Magic        uint16
	BufferLength uint16 `smb:"len:Buffer"`
	BufferOffset uint32 `smb:"offset:Buffer"`
	Cookie       []byte `smb:"fixed:4"`
	Buffer       []byte
}

func TestMarshalTags(t *testing.T) {
	msg := taggedMessage{
		Magic:  0xbeef,
		Cookie: []byte{1, 2, 3, 4},
		Buffer: []byte("payload"),
	}

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	// 2 + 2 + 4 + 4 fixed bytes before the variable buffer.
	if len(buf) != 12+len(msg.Buffer) {
		t.Fatalf("Wrong length %d", len(buf))
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != 0xbeef {
		t.Error("Wrong magic")
	}
	if binary.LittleEndian.Uint16(buf[2:4]) != uint16(len(msg.Buffer)) {
		t.Error("Length tag not resolved")
	}
	if binary.LittleEndian.Uint32(buf[4:8]) != 12 {
		t.Error("Offset tag not resolved")
	}
	if !bytes.Equal(buf[12:], msg.Buffer) {
		t.Error("Wrong buffer contents")
	}
}

func TestUnmarshalTags(t *testing.T) {
	msg := taggedMessage{
		Magic:  7,
		Cookie: []byte{9, 9, 9, 9},
		Buffer: []byte{0xaa, 0xbb, 0xcc},
	}
	buf, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed taggedMessage
	if err := Unmarshal(buf, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Magic != 7 {
		t.Error("Wrong magic")
	}
	if !bytes.Equal(parsed.Cookie, msg.Cookie) {
		t.Error("Wrong cookie")
	}
	if !bytes.Equal(parsed.Buffer, msg.Buffer) {
		t.Errorf("Wrong buffer %x", parsed.Buffer)
	}
}

func TestUnmarshalEmptyTaggedBuffer(t *testing.T) {
	msg := taggedMessage{Magic: 1, Cookie: make([]byte, 4)}
	buf, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed taggedMessage
	if err := Unmarshal(buf, &parsed); err != nil {
		t.Fatal(err)
	}
	if len(parsed.Buffer) != 0 {
		t.Errorf("Expected empty buffer, got %x", parsed.Buffer)
	}
}

func TestUnicodeRoundTrip(t *testing.T) {
	in := "smårfil.txt"
	buf := ToUnicode(in)
	if len(buf) != 2*len([]rune(in)) {
		t.Errorf("Unexpected encoded length %d", len(buf))
	}
	out, err := FromUnicodeString(buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("Round trip gave %q", out)
	}
}

func TestFromUnicodeOddLength(t *testing.T) {
	if _, err := FromUnicodeString([]byte{0x41}); err == nil {
		t.Error("Expected an error for an odd-length buffer")
	}
}
