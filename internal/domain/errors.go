package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidSequenceStatus    = NewDomainError(ErrCodeValidation, "invalid sequence status")
	ErrInvalidSuppressionReason = NewDomainError(ErrCodeValidation, "invalid suppression reason")
	ErrInvalidOutcomeStatus     = NewDomainError(ErrCodeValidation, "invalid delivery outcome status")
	ErrMissingRequiredField     = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrContactNotFound       = NewDomainError(ErrCodeNotFound, "contact not found")
	ErrSequenceStateNotFound = NewDomainError(ErrCodeNotFound, "sequence state not found")
	ErrSuppressionNotFound   = NewDomainError(ErrCodeNotFound, "suppression record not found")
	ErrKnowledgeNotFound     = NewDomainError(ErrCodeNotFound, "knowledge item not found")
	ErrStepRecordNotFound    = NewDomainError(ErrCodeNotFound, "step record not found")
)

// Already exists errors
var (
	ErrContactAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "contact already exists")
	ErrAlreadyEnrolled      = NewDomainError(ErrCodeAlreadyExists, "contact already has an active sequence")
)

// Operation errors
var (
	ErrContactSuppressed    = NewDomainError(ErrCodeInvalidOperation, "contact email is suppressed")
	ErrSequenceNotActive    = NewDomainError(ErrCodeInvalidOperation, "sequence state is not active")
	ErrCompositionInvalid   = NewDomainError(ErrCodeInternalError, "generated message failed validation")
	ErrTransportUnavailable = NewDomainError(ErrCodeInternalError, "mail transport not configured")
)
