package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: pageFromQuery(c),
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("targetType")),
		TargetID:   strings.TrimSpace(c.Query("targetId")),
		ActorID:    strings.TrimSpace(c.Query("actorId")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondList(c, http.StatusOK, resp.AuditLogs, resp.PageInfo)
}
