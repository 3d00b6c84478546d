package decode

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against a returned *Error to tell them apart.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptDocument   = errors.New("corrupt document")
)

// Error is returned when a document cannot be turned into text
type Error struct {
	Kind     error
	FileName string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decoding %s: %v: %v", e.FileName, e.Kind, e.Cause)
	}
	return fmt.Sprintf("decoding %s: %v", e.FileName, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func unsupported(fileName string, cause error) *Error {
	return &Error{Kind: ErrUnsupportedFormat, FileName: fileName, Cause: cause}
}

func corrupt(fileName string, cause error) *Error {
	return &Error{Kind: ErrCorruptDocument, FileName: fileName, Cause: cause}
}
