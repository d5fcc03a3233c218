package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField    = errors.New("missing field")
	ErrDisallowedField = errors.New("disallowed field")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrDuplicateEmail  = errors.New("duplicate email")
	ErrNotFound        = errors.New("not found")
	ErrNotPersisted    = errors.New("not persisted")
	ErrInvalidSlug     = errors.New("invalid slug")
	ErrAmbiguousSlug   = errors.New("ambiguous slug")
)

type AppError struct {
	Err     error  // sentinel matched with errors.Is
	Message string // human-readable
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func MissingField(field string) *AppError {
	return &AppError{
		Err:     ErrMissingField,
		Message: fmt.Sprintf("%s must be in this record", field),
		Field:   field,
	}
}

func DisallowedField(field string) *AppError {
	return &AppError{
		Err:     ErrDisallowedField,
		Message: fmt.Sprintf("%s not allowed in this record", field),
		Field:   field,
	}
}

// Rejected reports a field whose value the store cannot accept.
func Rejected(field, message string) *AppError {
	return &AppError{
		Err:     ErrDisallowedField,
		Message: message,
		Field:   field,
	}
}

func DuplicateName(name string) *AppError {
	return &AppError{
		Err:     ErrDuplicateName,
		Message: fmt.Sprintf("listing with name %s already exists", name),
		Field:   "name",
	}
}

func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: fmt.Sprintf("a user with email %s already exists", email),
		Field:   "email",
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func NotPersisted(resource string) *AppError {
	return &AppError{
		Err:     ErrNotPersisted,
		Message: fmt.Sprintf("%s not yet saved to database", resource),
	}
}

func InvalidSlug(slug string) *AppError {
	return &AppError{
		Err:     ErrInvalidSlug,
		Message: fmt.Sprintf("%s is not a fully qualified slug", slug),
	}
}

func AmbiguousSlug(slug string) *AppError {
	return &AppError{
		Err:     ErrAmbiguousSlug,
		Message: fmt.Sprintf("slug %s matched multiple listings", slug),
	}
}
