package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, principal *Principal) error
	FindByID(ctx context.Context, id snowflake.ID) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	ListCreatedBefore(ctx context.Context, before time.Time, afterID snowflake.ID, limit int) ([]Principal, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
}
