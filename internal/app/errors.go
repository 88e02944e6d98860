package app

import (
	"fmt"
	"net/http"
)

const (
	codeValidation        = "VALIDATION_ERROR"
	codeInvalidBody       = "INVALID_BODY"
	codeReservedID        = "RESERVED_ID"
	codeLimitExceeded     = "LIMIT_EXCEEDED"
	codeUnauthorized      = "UNAUTHORIZED"
	codeInvalidCredential = "INVALID_CREDENTIALS"
	codeNotFound          = "NOT_FOUND"
	codeConflict          = "CONFLICT"
	codeExportUnavailable = "EXPORT_UNAVAILABLE"
	codeServerError       = "SERVER_ERROR"
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

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, codeValidation, message, details)
}

func reservedIDError(message string) *DomainError {
	return domainError(http.StatusBadRequest, codeReservedID, message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, codeNotFound, message, nil)
}

func unauthorizedError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, codeUnauthorized, message, nil)
}
