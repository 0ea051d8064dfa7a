package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
}

type ListAuditLogResponse struct {
	AuditLogs []AuditLog
	PageInfo  pagination.PageInfo
}

// Service records who did what. AuditLog failures are logged by the
// implementation; callers discard the error.
type Service interface {
	AuditLog(ctx context.Context, actor Actor, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, int64, error)
}

var ErrInvalidAction = errors.New("invalid_action")
