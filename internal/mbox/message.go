package mbox

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	// needed to handle other charsets too
	_ "github.com/emersion/go-message/charset"
)

// Part is a leaf of the MIME tree with its transfer encoding removed
type Part struct {
	// ContentType is the lower case media type without parameters
	ContentType string
	Filename    string
	Body        []byte
}

type Message struct {
	raw    []byte
	header mail.Header
}

// ReadMessage parses the header of a raw message. The body is only read
// by Parts.
func ReadMessage(raw []byte) (*Message, error) {
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, &StructureError{Err: err}
	}
	return &Message{
		raw:    raw,
		header: mail.Header{Header: e.Header},
	}, nil
}

// Header returns the value of the header field k without decoding it
func (m *Message) Header(k string) string {
	return m.header.Get(k)
}

// Subject returns the decoded Subject header
func (m *Message) Subject() (string, error) {
	if !m.header.Has("Subject") {
		return "", ErrMissingSubject
	}
	subject, err := m.header.Subject()
	if err != nil {
		// keep the encoded form if the charset is unknown
		return strings.TrimSpace(m.header.Get("Subject")), nil
	}
	return strings.TrimSpace(subject), nil
}

// Parts returns all leaf parts of the message in the order they appear
func (m *Message) Parts() ([]Part, error) {
	e, err := message.Read(bytes.NewReader(m.raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, &StructureError{Err: err}
	}

	var parts []Part
	err = e.Walk(func(path []int, entity *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) {
			return err
		}
		contentType, _, ctErr := entity.Header.ContentType()
		if ctErr != nil {
			contentType, _, _ = strings.Cut(entity.Header.Get("Content-Type"), ";")
		}
		contentType = strings.ToLower(strings.TrimSpace(contentType))
		if strings.HasPrefix(contentType, "multipart/") {
			return nil
		}

		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return fmt.Errorf("could not read part %v: %w", path, err)
		}
		attachmentHeader := mail.AttachmentHeader{Header: entity.Header}
		filename, _ := attachmentHeader.Filename()
		parts = append(parts, Part{
			ContentType: contentType,
			Filename:    filename,
			Body:        body,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
	return parts, nil
}
