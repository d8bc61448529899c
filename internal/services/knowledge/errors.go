// File: internal/services/knowledge/errors.go
package knowledge

import "fmt"

type ErrorType string

const (
	ErrTypeVector    ErrorType = "VECTOR"
	ErrTypeEmbedding ErrorType = "EMBEDDING"
	ErrTypeNotFound  ErrorType = "NOT_FOUND"
	ErrTypeConflict  ErrorType = "CONFLICT"
	ErrTypeSnapshot  ErrorType = "SNAPSHOT"
)

type StoreError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("knowledge %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("knowledge %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// NewInvalidVectorError reports a similarity computation over vectors of
// different dimensions.
func NewInvalidVectorError(lenA, lenB int) *StoreError {
	return &StoreError{
		Type:      ErrTypeVector,
		Operation: "cosine_similarity",
		Message:   fmt.Sprintf("vector dimension mismatch: %d vs %d", lenA, lenB),
	}
}

func NewNotFoundError(operation, msg string) *StoreError {
	return &StoreError{Type: ErrTypeNotFound, Operation: operation, Message: msg}
}

func NewEmbeddingError(operation string, cause error) *StoreError {
	return &StoreError{Type: ErrTypeEmbedding, Operation: operation,
		Message: "failed to embed query", Cause: cause}
}

// IsNotFound reports whether err is a NOT_FOUND store error.
func IsNotFound(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Type == ErrTypeNotFound
}
