package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/agencydesk/internal/approval/domain"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
)

// UpdateRegistrationRequest is the PUT body. reviewedBy is accepted for
// compatibility but the reviewer is always the authenticated admin.
type UpdateRegistrationRequest struct {
	ID         *snowflake.ID `json:"id"`
	Status     *string       `json:"status"`
	Notes      *string       `json:"notes"`
	ReviewedBy *string       `json:"reviewedBy"`
}

// ApprovalResponse is returned exactly once per approval; the password is
// not stored anywhere.
type ApprovalResponse struct {
	Password     string                  `json:"password"`
	Registration *regdomain.Registration `json:"registration"`
	User         *rosterdomain.AdminUser `json:"user"`
	ApprovedBy   string                  `json:"approvedBy"`
}

func newApprovalResponse(res *approvaldomain.ApproveResult) ApprovalResponse {
	return ApprovalResponse{
		Password:     res.Password,
		Registration: res.Registration,
		User:         res.User,
		ApprovedBy:   res.ApprovedBy.Email,
	}
}

func (s *Server) SubmitRegistration(c *gin.Context) {
	var req regdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reg, err := s.registrationSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusCreated, reg, "Registration submitted")
}

func (s *Server) ListRegistrations(c *gin.Context) {
	resp, err := s.registrationSvc.List(c.Request.Context(), regdomain.ListRequest{
		Pagination: pageFromQuery(c),
		Status:     strings.TrimSpace(c.Query("status")),
		Position:   strings.TrimSpace(c.Query("position")),
		Experience: strings.TrimSpace(c.Query("experience")),
		Search:     strings.TrimSpace(c.Query("search")),
		SortBy:     strings.TrimSpace(c.Query("sortBy")),
		SortOrder:  strings.TrimSpace(c.Query("sortOrder")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, http.StatusOK, resp.Registrations, resp.PageInfo)
}

func (s *Server) GetRegistration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	reg, err := s.registrationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, reg, "")
}

// UpdateRegistration runs approve or reject when status is present, carrying
// notes into the same transition. Notes alone only annotate a pending record.
func (s *Server) UpdateRegistration(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ID != nil && *req.ID != id {
		AbortWithError(c, ErrIDMismatch)
		return
	}

	var status regdomain.Status
	if req.Status != nil {
		status = regdomain.Status(strings.TrimSpace(*req.Status))
		if status != regdomain.StatusApproved && status != regdomain.StatusRejected {
			AbortWithError(c, regdomain.ErrInvalidStatus)
			return
		}
	}

	ctx := c.Request.Context()
	switch {
	case status != "":
		res, err := s.approvalSvc.Review(ctx, actor, id, approvaldomain.ReviewRequest{
			Status: status,
			Notes:  req.Notes,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if res.Approval != nil {
			respond(c, http.StatusOK, newApprovalResponse(res.Approval), "Registration approved")
			return
		}
		respond(c, http.StatusOK, res.Registration, "Registration rejected")
	case req.Notes != nil:
		reg, err := s.registrationSvc.UpdateNotes(ctx, actor, id, *req.Notes)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, reg, "Registration updated")
	default:
		AbortWithError(c, invalidRequestError())
	}
}

func (s *Server) DeleteRegistration(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.approvalSvc.Remove(c.Request.Context(), actor, id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Registration deleted")
}

func (s *Server) ApproveRegistration(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	res, err := s.approvalSvc.Approve(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, newApprovalResponse(res), "Registration approved")
}

func (s *Server) RejectRegistration(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	reg, err := s.approvalSvc.Reject(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, reg, "Registration rejected")
}
