package service

import "errors"

// Sentinel errors for the domain operations. The HTTP layer maps these to
// status codes; anything not matching is treated as internal.
var (
	ErrValidation         = errors.New("missing required field")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyApplied     = errors.New("already applied for this job")
	ErrNotFound           = errors.New("not found")
	ErrNotOwner           = errors.New("application belongs to another user")
)
