package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agencydesk/internal/access"
	approvaldomain "github.com/smallbiznis/agencydesk/internal/approval/domain"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/config"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string
	Message string
	Errors  []ValidationError
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrIDMismatch         = errors.New("id_mismatch")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// badRequestFields names the request field each single-field sentinel refers to.
var badRequestFields = []struct {
	err   error
	field string
}{
	{ErrIDMismatch, "id"},
	{regdomain.ErrInvalidStatus, "status"},
	{regdomain.ErrInvalidSort, "sortBy"},
	{regdomain.ErrNotesTooLong, "notes"},
	{rosterdomain.ErrSelfTarget, "id"},
	{rosterdomain.ErrInvalidDisplayName, "displayName"},
	{rosterdomain.ErrInvalidRole, "role"},
	{config.ErrUnknownAdminClass, "adminClass"},
	{authdomain.ErrInvalidEmail, "email"},
	{authdomain.ErrPasswordTooShort, "password"},
	{approvaldomain.ErrIdentityMismatch, "registrationId"},
	{auditdomain.ErrInvalidAction, "action"},
}

var conflictErrors = []error{
	regdomain.ErrDuplicateEmail,
	regdomain.ErrStatusConflict,
	rosterdomain.ErrAlreadyEnrolled,
	rosterdomain.ErrAlreadyAdmin,
	rosterdomain.ErrAlreadyTeamMember,
	authdomain.ErrPrincipalExists,
	approvaldomain.ErrApprovalInProgress,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, Envelope{
			Success: false,
			Error:   payload.Type,
			Message: payload.Message,
			Errors:  payload.Errors,
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var regErr *regdomain.ValidationError
	if errors.As(err, &regErr) {
		fields := make([]ValidationError, 0, len(regErr.Fields))
		for _, f := range regErr.Fields {
			fields = append(fields, ValidationError{
				Field:   f.Field,
				Code:    f.Code,
				Message: validationMessage(f.Code),
			})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		field := validationErrorField(err)
		if field == "" {
			field = "request"
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationMessage(code),
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    code,
					Message: validationMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "invalid email or password",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, access.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "authentication required",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "admin access required",
		}
	case conflictCode(err) != "":
		return http.StatusConflict, errorPayload{
			Type:    conflictCode(err),
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}

	switch status {
	case http.StatusBadRequest:
		return "validation_error", code
	case http.StatusUnauthorized:
		return "unauthorized", code
	case http.StatusForbidden:
		return "forbidden", code
	case http.StatusNotFound:
		return "not_found", code
	case http.StatusConflict:
		return "conflict", code
	case http.StatusTooManyRequests:
		return "rate_limited", code
	case http.StatusServiceUnavailable:
		return "service_unavailable", code
	default:
		return "internal_error", code
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || validationErrorField(err) != ""
}

func conflictCode(err error) string {
	for _, sentinel := range conflictErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ""
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, regdomain.ErrDuplicateEmail):
		return "a registration with this email already exists"
	case errors.Is(err, regdomain.ErrStatusConflict):
		return "registration is no longer pending"
	case errors.Is(err, rosterdomain.ErrAlreadyAdmin):
		return "user is already an admin"
	case errors.Is(err, rosterdomain.ErrAlreadyTeamMember):
		return "user is already a team member"
	case errors.Is(err, approvaldomain.ErrApprovalInProgress):
		return "registration is being approved"
	default:
		return "an account with this email already exists"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, regdomain.ErrNotFound),
		errors.Is(err, rosterdomain.ErrNotFound),
		errors.Is(err, authdomain.ErrPrincipalNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, entry := range badRequestFields {
		if errors.Is(err, entry.err) {
			return entry.err.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(err error) string {
	for _, entry := range badRequestFields {
		if errors.Is(err, entry.err) {
			return entry.field
		}
	}
	return ""
}

func validationMessage(code string) string {
	switch code {
	case regdomain.CodeRequired:
		return "is required"
	case regdomain.CodeInvalidEmail, authdomain.ErrInvalidEmail.Error():
		return "must be a valid email address"
	case regdomain.CodeInvalidAvatar:
		return "must be a data:image base64 URI"
	case regdomain.CodeAvatarTooBig:
		return "must be at most 2 MiB"
	case regdomain.CodeInvalidURL:
		return "must be an http(s) URL"
	case regdomain.CodeTooLong, regdomain.ErrNotesTooLong.Error():
		return "is too long"
	case "invalid_request":
		return "invalid request"
	case ErrIDMismatch.Error():
		return "body id does not match the path"
	case regdomain.ErrInvalidStatus.Error():
		return "status must be approved or rejected"
	case rosterdomain.ErrSelfTarget.Error():
		return "you cannot perform this action on your own account"
	case config.ErrUnknownAdminClass.Error():
		return "unknown admin class"
	case authdomain.ErrPasswordTooShort.Error():
		return "password must be at least 8 characters"
	case approvaldomain.ErrIdentityMismatch.Error():
		return "details do not match the registration"
	default:
		return "invalid value"
	}
}
