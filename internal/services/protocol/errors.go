// File: internal/services/protocol/errors.go
package protocol

import "fmt"

type ErrorType string

const (
	ErrTypeExtraction ErrorType = "EXTRACTION"
	ErrTypeOutline    ErrorType = "OUTLINE"
	ErrTypeGeneration ErrorType = "GENERATION"
	ErrTypeQuality    ErrorType = "QUALITY"
	ErrTypeValidation ErrorType = "VALIDATION"
)

// GenerationError is the error surface of the protocol pipeline.
type GenerationError struct {
	Type      ErrorType
	Operation string
	Section   string
	Message   string
	Cause     error
}

func (e *GenerationError) Error() string {
	if e.Section != "" {
		if e.Cause != nil {
			return fmt.Sprintf("[%s] %s (section %q): %s: %v", e.Type, e.Operation, e.Section, e.Message, e.Cause)
		}
		return fmt.Sprintf("[%s] %s (section %q): %s", e.Type, e.Operation, e.Section, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func NewValidationError(operation, message string) *GenerationError {
	return &GenerationError{Type: ErrTypeValidation, Operation: operation, Message: message}
}

func NewSectionError(operation, section, message string, cause error) *GenerationError {
	return &GenerationError{Type: ErrTypeGeneration, Operation: operation, Section: section, Message: message, Cause: cause}
}
