package domain

import "errors"

var (
	ErrNotFound       = errors.New("registration_not_found")
	ErrDuplicateEmail = errors.New("registration_email_exists")
	ErrStatusConflict = errors.New("registration_not_pending")
	ErrInvalidStatus  = errors.New("invalid_status")
	ErrInvalidSort    = errors.New("invalid_sort")
	ErrNotesTooLong   = errors.New("notes_too_long")
)

const (
	CodeRequired      = "required"
	CodeInvalidEmail  = "invalid_email"
	CodeInvalidAvatar = "invalid_avatar"
	CodeAvatarTooBig  = "avatar_too_large"
	CodeInvalidURL    = "invalid_url"
	CodeTooLong       = "too_long"
)

type FieldError struct {
	Field string
	Code  string
}

// ValidationError collects every field problem found in one submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation_failed"
	}
	return "validation_failed: " + e.Fields[0].Field + " " + e.Fields[0].Code
}

func (e *ValidationError) Add(field, code string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code})
}

func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
