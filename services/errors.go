package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a gateway error.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeBudget      ErrorType = "budget"
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	ErrorTypeExhausted   ErrorType = "exhausted"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError is a structured error with a stable type, suitable for mapping
// to the caller-facing {error_code, message, retryable} shape.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on error type so sentinel comparisons work across wrapping.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail attaches a diagnostic key to the error.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error.
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

var (
	ErrEmptyPrompt            = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)
	ErrMissingIdentity        = NewDomainError(ErrorTypeValidation, "user_id and tenant_id are required", nil)
	ErrInvalidTemperature     = NewDomainError(ErrorTypeValidation, "temperature must be between 0 and 2", nil)
	ErrInvalidMaxTokens       = NewDomainError(ErrorTypeValidation, "max_tokens must be positive", nil)
	ErrPromptTooLong          = NewDomainError(ErrorTypeValidation, "prompt exceeds every eligible model's context window", nil)
	ErrBudgetExceeded         = NewDomainError(ErrorTypeBudget, "budget exceeded", nil)
	ErrCircuitOpen            = NewDomainError(ErrorTypeCircuitOpen, "provider circuit open", nil)
	ErrAllCandidatesExhausted = NewDomainError(ErrorTypeExhausted, "all routing candidates exhausted", nil)
	ErrNoEligibleModels       = NewDomainError(ErrorTypeExhausted, "no model satisfies the requested capabilities", nil)
)

// GetErrorType returns the ErrorType of err, or empty string when err is not
// a DomainError.
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// IsBudgetError checks if an error is a budget denial.
func IsBudgetError(err error) bool {
	return GetErrorType(err) == ErrorTypeBudget
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// Retryable reports whether the caller may reasonably re-issue the same
// request later. Validation failures never are; everything transient is.
func Retryable(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeValidation:
		return false
	case ErrorTypeBudget:
		// Budgets refill on window rollover.
		return true
	case ErrorTypeCircuitOpen, ErrorTypeExhausted, ErrorTypeExternal, ErrorTypeInternal:
		return true
	default:
		return false
	}
}
