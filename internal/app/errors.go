package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errValidation(format string, args ...any) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf(format, args...), nil)
}

// errForbidden carries the policy's denial reason verbatim.
func errForbidden(reason string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", reason, nil)
}

// Duplicate unique fields are client errors, reported as 400 with a
// CONFLICT code.
func errConflict(format string, args ...any) *DomainError {
	return domainError(http.StatusBadRequest, "CONFLICT", fmt.Sprintf(format, args...), nil)
}
