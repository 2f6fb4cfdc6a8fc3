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

const usernameTakenMessage = "Username is already taken. Please choose a different one."

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func unauthorized(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func usernameTaken() *DomainError {
	return domainError(http.StatusBadRequest, "USERNAME_TAKEN", usernameTakenMessage, nil)
}

func unavailable(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
