package domain

import "errors"

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrPasswordTooShort   = errors.New("password_too_short")
	ErrPrincipalExists    = errors.New("principal_exists")
	ErrPrincipalNotFound  = errors.New("principal_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
)
