package attachment

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// matches the encoding pseudo attribute of a leading XML declaration
var xmlEncoding = regexp.MustCompile(`^(\s*<\?xml\s[^>]*?encoding\s*=\s*["'])([A-Za-z0-9._:-]+)(["'])`)

func isUTF8Label(label string) bool {
	switch strings.ToLower(label) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

// decodeText converts an extracted XML payload to UTF-8. Payloads that
// declare another encoding are transcoded and the declaration is rewritten
// so the document stays consistent.
func decodeText(payload []byte) (string, error) {
	payload = bytes.TrimPrefix(payload, utf8BOM)

	if m := xmlEncoding.FindSubmatch(payload); m != nil {
		label := string(m[2])
		if !isUTF8Label(label) {
			r, err := charset.Reader(label, bytes.NewReader(payload))
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrTextDecode, err)
			}
			decoded, err := io.ReadAll(r)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrTextDecode, err)
			}
			payload = xmlEncoding.ReplaceAll(decoded, []byte("${1}UTF-8${3}"))
		}
	}

	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrTextDecode)
	}
	return string(payload), nil
}
