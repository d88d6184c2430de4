package detections

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRegion  = errors.New("invalid region")
	ErrDegenerateCrop = errors.New("degenerate crop")
	ErrOutputShape    = errors.New("unexpected output shape")
)

type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
