package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the credential store contract the rest of the system relies on.
type Service interface {
	CreatePrincipal(ctx context.Context, req CreatePrincipalRequest) (*Principal, error)
	DeletePrincipal(ctx context.Context, id snowflake.ID) error
	GetPrincipal(ctx context.Context, id snowflake.ID) (*Principal, error)
	// ListPrincipals pages by id: pass the last id of the previous page as afterID.
	ListPrincipals(ctx context.Context, createdBefore time.Time, afterID snowflake.ID, limit int) ([]Principal, error)
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)
	VerifyToken(ctx context.Context, rawToken string) (*Identity, error)
	ChangePassword(ctx context.Context, id snowflake.ID, currentPassword, newPassword string) error
}

type CreatePrincipalRequest struct {
	Email       string
	Password    string
	DisplayName string
}

type SignInResult struct {
	Token     string
	ExpiresAt time.Time
	Principal *Principal
}

// Identity is what a verified bearer token proves.
type Identity struct {
	PrincipalID snowflake.ID
	Email       string
	TokenID     string
	ExpiresAt   time.Time
}
