package attachment

import (
	"fmt"
	"mime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/firefart/dmarcmbox/internal/helper"
)

// DefaultMaxSize bounds the decompressed size of a single report
const DefaultMaxSize = 20 * 1024 * 1024

const octetStream = "application/octet-stream"

// DecodeFunc extracts the report payload from an attachment body. The
// payload must not exceed limit bytes.
type DecodeFunc func(body []byte, limit int64) ([]byte, error)

// Decoder turns attachment bodies into report text. Formats are looked up
// in a table keyed by media type.
type Decoder struct {
	// MaxSize is the maximum decompressed payload size in bytes
	MaxSize int64
	// SniffOctetStream resolves application/octet-stream parts by their
	// magic bytes
	SniffOctetStream bool

	formats map[string]DecodeFunc
}

func New() *Decoder {
	d := &Decoder{
		MaxSize: DefaultMaxSize,
		formats: make(map[string]DecodeFunc),
	}
	d.Register("application/zip", ReadZIP)
	d.Register("application/x-zip-compressed", ReadZIP)
	d.Register("application/gzip", ReadGZ)
	d.Register("application/x-gzip", ReadGZ)
	return d
}

// Register adds or replaces the decode function for a media type
func (d *Decoder) Register(mediaType string, fn DecodeFunc) {
	d.formats[strings.ToLower(mediaType)] = fn
}

// mediaType strips parameters and normalizes case
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func (d *Decoder) lookup(contentType string, body []byte) (string, DecodeFunc, bool) {
	mt := mediaType(contentType)
	if mt == octetStream && d.SniffOctetStream {
		if sniffed := helper.SniffMediaType(body); sniffed != "" {
			mt = sniffed
		}
	}
	fn, ok := d.formats[mt]
	return mt, fn, ok
}

// Supports reports whether parts with the content type would be decoded.
// For application/octet-stream parts body is needed to sniff the format.
func (d *Decoder) Supports(contentType string, body []byte) bool {
	_, _, ok := d.lookup(contentType, body)
	return ok
}

// Decode extracts the report document from an attachment and returns it
// as UTF-8 text.
func (d *Decoder) Decode(contentType string, body []byte) (string, error) {
	mt, fn, ok := d.lookup(contentType, body)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, mediaType(contentType))
	}

	limit := d.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	payload, err := fn(body, limit)
	if err != nil {
		return "", &ExtractError{MediaType: mt, Err: err}
	}
	if len(payload) == 0 {
		return "", &ExtractError{MediaType: mt, Err: fmt.Errorf("empty payload in %s archive", humanize.Bytes(uint64(len(body))))}
	}
	return decodeText(payload)
}
