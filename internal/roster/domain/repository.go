package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ListFilter struct {
	Role     Role
	Approved *bool
	Search   string
	Offset   int
	Limit    int
}

type Repository interface {
	Create(ctx context.Context, user *AdminUser) error
	FindByID(ctx context.Context, id snowflake.ID) (*AdminUser, error)
	FindByRegistrationID(ctx context.Context, registrationID snowflake.ID) (*AdminUser, error)
	List(ctx context.Context, filter ListFilter) ([]AdminUser, int64, error)
	ChangeRole(ctx context.Context, id snowflake.ID, to Role, fields map[string]any) error
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
}
