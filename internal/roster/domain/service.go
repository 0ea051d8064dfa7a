package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
)

type Service interface {
	CreateAdmin(ctx context.Context, actor Actor, req CreateAdminRequest) (*CreateAdminResult, error)
	Promote(ctx context.Context, actor Actor, id snowflake.ID) (*AdminUser, error)
	Demote(ctx context.Context, actor Actor, id snowflake.ID) (*AdminUser, error)
	DeleteUser(ctx context.Context, actor Actor, id snowflake.ID) error
	List(ctx context.Context, actor Actor, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, actor Actor, id snowflake.ID) (*AdminUser, error)

	// Lookup is the ungated read used by the access guard.
	Lookup(ctx context.Context, id snowflake.ID) (*AdminUser, error)
	TouchLastLogin(ctx context.Context, id snowflake.ID) error
}

type CreateAdminRequest struct {
	Email       string
	DisplayName string
	AdminClass  string
	Position    string
	Password    string
}

// CreateAdminResult carries the password exactly once; it is not stored.
type CreateAdminResult struct {
	Password string
	User     *AdminUser
}

type ListRequest struct {
	pagination.Pagination
	Role     Role
	Approved *bool
	Search   string
}

type ListResponse struct {
	Users    []AdminUser
	PageInfo pagination.PageInfo
}
