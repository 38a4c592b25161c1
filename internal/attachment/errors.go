package attachment

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned for content types without a registered
	// decode function. Callers skip such parts.
	ErrUnsupported = errors.New("unsupported attachment type")
	// ErrArchive is the cause of every ExtractError
	ErrArchive = errors.New("invalid archive")
	// ErrTextDecode is returned when the extracted payload is not text in
	// its declared encoding
	ErrTextDecode = errors.New("could not decode attachment text")
)

// ExtractError is returned when an archive can not be extracted
type ExtractError struct {
	MediaType string
	Err       error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("could not extract %s: %v", e.MediaType, e.Err)
}

func (e *ExtractError) Unwrap() []error {
	return []error{ErrArchive, e.Err}
}
