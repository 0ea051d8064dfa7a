package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
)

var (
	ErrApprovalInProgress = errors.New("approval_in_progress")
	ErrIdentityMismatch   = errors.New("registration_identity_mismatch")
)

// Service moves registrations out of pending. Every call is admin-only.
type Service interface {
	Approve(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID) (*ApproveResult, error)
	Reject(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID) (*regdomain.Registration, error)
	// Review approves or rejects with reviewer notes written in the same
	// conditional update as the status change.
	Review(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID, req ReviewRequest) (*ReviewResult, error)
	Remove(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID) error
}

// ApproveResult carries the generated password exactly once. It is never
// persisted.
type ApproveResult struct {
	Password     string
	Registration *regdomain.Registration
	User         *rosterdomain.AdminUser
	ApprovedBy   rosterdomain.Actor
}

type ReviewRequest struct {
	Status regdomain.Status
	Notes  *string
}

// ReviewResult has Approval set for an approval and Registration set for a
// rejection.
type ReviewResult struct {
	Approval     *ApproveResult
	Registration *regdomain.Registration
}
