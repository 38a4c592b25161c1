package helper

import (
	"bytes"
)

type magic struct {
	prefix    []byte
	mediaType string
}

// https://en.wikipedia.org/wiki/List_of_file_signatures
var magicTable = []magic{
	{[]byte{31, 139}, "application/gzip"},     // .gz "\x1f\x8b"
	{[]byte{80, 75, 3, 4}, "application/zip"}, // .zip "\x50\x4B\x03\x04"
	{[]byte{80, 75, 5, 6}, "application/zip"}, // .zip "\x50\x4B\x05\x06"
	{[]byte{80, 75, 7, 8}, "application/zip"}, // .zip "\x50\x4B\x07\x08"
}

// SniffMediaType returns the archive media type matching the magic bytes
// of content or an empty string if content is not a supported archive.
func SniffMediaType(content []byte) string {
	sliceEnd := 10
	if len(content) < sliceEnd {
		sliceEnd = len(content)
	}
	contentStr := content[0:sliceEnd]

	for _, m := range magicTable {
		if bytes.HasPrefix(contentStr, m.prefix) {
			return m.mediaType
		}
	}

	return ""
}
