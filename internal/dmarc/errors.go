package dmarc

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingElement is the cause of a SchemaError for a required element
	// the report does not contain.
	ErrMissingElement = errors.New("missing required element")
	// ErrInvalidValue is the cause of a SchemaError for an element whose text
	// can not be converted.
	ErrInvalidValue = errors.New("invalid value")
)

// SchemaError is returned for documents that do not form a valid report,
// even after the compatibility rules were applied.
type SchemaError struct {
	// Path is the slash separated element path, e.g. feedback/record[2]/row/count
	Path string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("could not parse %s: %v", e.Path, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func schemaErr(path string, err error) error {
	return &SchemaError{Path: path, Err: err}
}

func missing(path string) error {
	return schemaErr(path, ErrMissingElement)
}
