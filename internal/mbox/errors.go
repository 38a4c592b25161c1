package mbox

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSubject = errors.New("message has no subject")
	ErrMalformedBody  = errors.New("malformed message body")
)

// StructureError is returned when the header of a message can not be parsed
type StructureError struct {
	Err error
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("could not parse message header: %v", e.Err)
}

func (e *StructureError) Unwrap() error {
	return e.Err
}
