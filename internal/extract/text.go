package extract

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText never fails: a UTF-8 or UTF-16 byte order mark selects the
// encoding, invalid UTF-8 sequences are dropped.
func decodeText(data []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		out = data
	}
	return strings.ToValidUTF8(string(out), ""), nil
}
