package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors forming the error taxonomy of the auth service. Storage
// implementations and flow managers return these; the API layer translates
// them to HTTP statuses. Store-level absent/expired results are returned,
// never panicked.
var (
	// ErrNotFound is returned by stores for absent entries.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAccount is returned when the normalized email is taken.
	ErrDuplicateAccount = errors.New("an account with this email already exists")

	// ErrInvalidCredentials collapses unknown email, wrong password, and
	// inactive account into one indistinguishable failure to prevent
	// account enumeration.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenExpired is returned by token stores for entries past their
	// expiry. The API layer merges it with ErrNotFound into a uniform
	// "invalid or expired" response.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidToken covers reset and workflow tokens that are unknown
	// or expired, merged at the boundary.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrUnauthenticated is returned when no live session backs a request.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrWorkflowNotFound is returned when a multi-step registration is
	// continued without a live workflow token.
	ErrWorkflowNotFound = errors.New("registration session not found")
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates per-field failures. Input is rejected before
// any store access; all failing fields are reported at once.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Merge appends all failures from other.
func (e *ValidationError) Merge(other *ValidationError) {
	if other != nil {
		e.Fields = append(e.Fields, other.Fields...)
	}
}

// Err returns the error, or nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
