package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the mutation violates an integrity rule,
	// such as editing a system role or deleting a role still in use.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates the request payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates a missing or invalid admin credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller is authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")
)
