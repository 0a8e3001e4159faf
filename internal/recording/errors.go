package recording

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every decode failure via errors.Is.
var ErrMalformed = errors.New("malformed recording")

// MalformedError describes why a recording could not be decoded.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformed.Error(), e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}
