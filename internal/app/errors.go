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

func validationError(field, message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", field+" "+message, map[string]string{field: message})
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func parentNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "PARENT_NOT_FOUND", message, nil)
}

func conflict(message string) *DomainError {
	return domainError(http.StatusConflict, "ID_EXISTS", message, nil)
}

func invalidHierarchy(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_HIERARCHY", message, nil)
}
