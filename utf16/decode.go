// Package utf16 converts UTF-16 little endian character data, as found in NTFS name fields, to Go strings.
package utf16

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// DecodeString decodes the input data as UTF-16 little endian and converts the result to a string. Invalid code units
// (such as unpaired surrogates) are replaced with U+FFFD. The input data length must be a multiple of 2.
func DecodeString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("utf-16 data length should be even but is %d", len(b))
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("unable to decode utf-16 data: %w", err)
	}
	return string(decoded), nil
}
