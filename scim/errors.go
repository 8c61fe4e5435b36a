// Package scim implements the SCIM 2.0 type system per RFC 7643: attribute
// definitions and value coercion, filter expression parsing and matching, and
// schema definitions with live resource instances.
package scim

import (
	"fmt"
	"net/http"
)

// ScimType keywords permitted in a SCIM error response (RFC 7644 3.12).
const (
	ScimTypeUniqueness    = "uniqueness"
	ScimTypeTooMany       = "tooMany"
	ScimTypeInvalidFilter = "invalidFilter"
	ScimTypeMutability    = "mutability"
	ScimTypeInvalidSyntax = "invalidSyntax"
	ScimTypeInvalidPath   = "invalidPath"
	ScimTypeNoTarget      = "noTarget"
	ScimTypeInvalidValue  = "invalidValue"
	ScimTypeInvalidVers   = "invalidVers"
	ScimTypeSensitive     = "sensitive"
)

// Error is a protocol-level SCIM error carrying an HTTP status code and a
// constrained scimType keyword. Configuration mistakes (malformed attribute
// definitions, bad schema construction) are plain errors instead and should
// surface at startup.
type Error struct {
	Status   int
	ScimType string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.ScimType != "" {
		return fmt.Sprintf("[%d/%s] %s", e.Status, e.ScimType, e.Detail)
	}
	return fmt.Sprintf("[%d] %s", e.Status, e.Detail)
}

// NewError creates a protocol error with the given status and scimType
func NewError(status int, scimType, detail string) *Error {
	return &Error{Status: status, ScimType: scimType, Detail: detail}
}

// InvalidFilter creates a 400 invalidFilter error
func InvalidFilter(detail string) *Error {
	return NewError(http.StatusBadRequest, ScimTypeInvalidFilter, detail)
}

// InvalidValue creates a 400 invalidValue error
func InvalidValue(detail string) *Error {
	return NewError(http.StatusBadRequest, ScimTypeInvalidValue, detail)
}

// InvalidSyntax creates a 400 invalidSyntax error
func InvalidSyntax(detail string) *Error {
	return NewError(http.StatusBadRequest, ScimTypeInvalidSyntax, detail)
}

// InvalidPath creates a 400 invalidPath error
func InvalidPath(detail string) *Error {
	return NewError(http.StatusBadRequest, ScimTypeInvalidPath, detail)
}

// NoTarget creates a 400 noTarget error
func NoTarget(detail string) *Error {
	return NewError(http.StatusBadRequest, ScimTypeNoTarget, detail)
}

// MutabilityError creates a 400 mutability error
func MutabilityError(detail string) *Error {
	return NewError(http.StatusBadRequest, ScimTypeMutability, detail)
}

// UniquenessError creates a 409 uniqueness error
func UniquenessError(detail string) *Error {
	return NewError(http.StatusConflict, ScimTypeUniqueness, detail)
}

// IsScimType reports whether err is a protocol error of the given scimType
func IsScimType(err error, scimType string) bool {
	if e, ok := err.(*Error); ok {
		return e.ScimType == scimType
	}
	return false
}

// StatusOf returns the HTTP status code for an error, defaulting to 500 for
// anything that is not a protocol error
func StatusOf(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
