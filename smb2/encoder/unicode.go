package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// ToUnicode converts a string to the UTF-16LE form SMB2 carries names in.
func ToUnicode(input string) []byte {
	codePoints := utf16.Encode([]rune(input))
	b := bytes.Buffer{}
	binary.Write(&b, binary.LittleEndian, &codePoints)
	return b.Bytes()
}

// FromUnicodeString converts a UTF-16LE buffer back to a string.
func FromUnicodeString(buf []byte) (string, error) {
	if len(buf)%2 != 0 {
		return "", fmt.Errorf("invalid UTF-16LE string of %d bytes", len(buf))
	}
	s := make([]uint16, len(buf)/2)
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &s); err != nil {
		return "", err
	}
	return string(utf16.Decode(s)), nil
}
