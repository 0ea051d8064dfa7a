package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/agencydesk/internal/approval/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
)

type CreateTeamMemberRequest struct {
	RegistrationID snowflake.ID `json:"registrationId"`
	Email          string       `json:"email"`
	FirstName      string       `json:"firstName"`
	LastName       string       `json:"lastName"`
	Position       string       `json:"position"`
}

type CreateAdminRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AdminClass  string `json:"adminClass"`
	Position    string `json:"position"`
	Password    string `json:"password"`
}

type CreatedUserResponse struct {
	Password string                  `json:"password"`
	User     *rosterdomain.AdminUser `json:"user"`
}

// CreateTeamMember approves a registration on behalf of the admin console.
// Identity fields, when sent, must match the stored registration.
func (s *Server) CreateTeamMember(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var req CreateTeamMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.RegistrationID == 0 {
		AbortWithError(c, newValidationError("registrationId", "required", "registrationId is required"))
		return
	}

	ctx := c.Request.Context()
	reg, err := s.registrationSvc.Get(ctx, req.RegistrationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !identityMatches(reg, req) {
		AbortWithError(c, approvaldomain.ErrIdentityMismatch)
		return
	}

	res, err := s.approvalSvc.Approve(ctx, actor, reg.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, CreatedUserResponse{Password: res.Password, User: res.User}, "Team member created")
}

func identityMatches(reg *regdomain.Registration, req CreateTeamMemberRequest) bool {
	if email := strings.TrimSpace(req.Email); email != "" {
		normalized, err := authdomain.NormalizeEmail(email)
		if err != nil || normalized != reg.Email {
			return false
		}
	}
	checks := []struct{ sent, stored string }{
		{req.FirstName, reg.FirstName},
		{req.LastName, reg.LastName},
		{req.Position, reg.Position},
	}
	for _, check := range checks {
		sent := strings.TrimSpace(check.sent)
		if sent != "" && !strings.EqualFold(sent, check.stored) {
			return false
		}
	}
	return true
}

func (s *Server) ListUsers(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	approved, err := parseOptionalBool(c.Query("approved"))
	if err != nil {
		AbortWithError(c, newValidationError("approved", "invalid_approved", "approved must be a boolean"))
		return
	}

	resp, err := s.rosterSvc.List(c.Request.Context(), actor, rosterdomain.ListRequest{
		Pagination: pageFromQuery(c),
		Role:       rosterdomain.Role(strings.TrimSpace(c.Query("role"))),
		Approved:   approved,
		Search:     strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, http.StatusOK, resp.Users, resp.PageInfo)
}

func (s *Server) GetUser(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := s.rosterSvc.Get(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "")
}

func (s *Server) CreateAdmin(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.rosterSvc.CreateAdmin(c.Request.Context(), actor, rosterdomain.CreateAdminRequest{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		AdminClass:  req.AdminClass,
		Position:    req.Position,
		Password:    req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, CreatedUserResponse{Password: res.Password, User: res.User}, "Admin created")
}

func (s *Server) PromoteUser(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := s.rosterSvc.Promote(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "User promoted to admin")
}

func (s *Server) DemoteUser(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := s.rosterSvc.Demote(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, user, "User demoted to team member")
}

func (s *Server) DeleteUser(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.rosterSvc.DeleteUser(c.Request.Context(), actor, id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "User deleted")
}
