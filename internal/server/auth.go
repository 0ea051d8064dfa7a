package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/observability/logger"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string                  `json:"token"`
	ExpiresAt time.Time               `json:"expiresAt"`
	User      *rosterdomain.AdminUser `json:"user"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Login signs a principal in. Only approved roster members get a token; a
// valid password without a roster record is indistinguishable from a wrong
// one.
func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	email := strings.TrimSpace(req.Email)

	result, err := s.authSvc.SignIn(ctx, email, req.Password)
	if err != nil {
		s.auditLoginFailure(c, email, err)
		AbortWithError(c, err)
		return
	}

	user, err := s.rosterSvc.Lookup(ctx, result.Principal.ID)
	if err != nil && !errors.Is(err, rosterdomain.ErrNotFound) {
		AbortWithError(c, err)
		return
	}
	if user == nil || !user.IsApproved {
		s.auditLoginFailure(c, email, authdomain.ErrInvalidCredentials)
		AbortWithError(c, authdomain.ErrInvalidCredentials)
		return
	}

	if err := s.rosterSvc.TouchLastLogin(ctx, user.ID); err != nil {
		logger.FromContext(ctx).Warn("failed to stamp last login", zap.Error(err))
	}

	_ = s.auditSvc.AuditLog(ctx, rosterdomain.ActorFromUser(user).Audit(), "auth.login", "admin_user", user.ID.String(), nil)

	respond(c, http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      user,
	}, "")
}

func (s *Server) auditLoginFailure(c *gin.Context, email string, cause error) {
	_ = s.auditSvc.AuditLog(c.Request.Context(), auditdomain.Actor{Type: auditdomain.ActorTypePrincipal, Email: email}, "auth.login_failed", "admin_user", "", map[string]any{
		"email":  email,
		"reason": cause.Error(),
	})
}

func (s *Server) Me(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	user, err := s.rosterSvc.Lookup(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "")
}

func (s *Server) ChangePassword(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.CurrentPassword == "" {
		AbortWithError(c, newValidationError("currentPassword", "required", "current password is required"))
		return
	}

	ctx := c.Request.Context()
	if err := s.authSvc.ChangePassword(ctx, actor.ID, req.CurrentPassword, req.NewPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	_ = s.auditSvc.AuditLog(ctx, actor.Audit(), "auth.change_password", "admin_user", actor.ID.String(), nil)
	respond(c, http.StatusOK, nil, "Password updated")
}
