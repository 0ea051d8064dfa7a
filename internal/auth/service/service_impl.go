package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/auth/password"
	"github.com/smallbiznis/agencydesk/internal/auth/token"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"go.uber.org/zap"
)

const minPasswordLength = 8

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	clock  clock.Clock
	tokens *token.Issuer
}

func New(log *zap.Logger, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, tokens *token.Issuer) domain.Service {
	return &Service{
		log:    log.Named("auth.service"),
		repo:   repo,
		genID:  genID,
		clock:  clk,
		tokens: tokens,
	}
}

func (s *Service) CreatePrincipal(ctx context.Context, req domain.CreatePrincipalRequest) (*domain.Principal, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrPrincipalExists
	} else if !errors.Is(err, domain.ErrPrincipalNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	principal := &domain.Principal{
		ID:                  s.genID.Generate(),
		Email:               email,
		DisplayName:         displayName,
		PasswordHash:        hashed,
		LastPasswordChanged: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	// The unique index on email decides concurrent creates; the lookup above
	// only short-circuits the common case.
	if err := s.repo.Create(ctx, principal); err != nil {
		return nil, err
	}

	s.log.Info("principal created", zap.String("principal_id", principal.ID.String()))
	return principal, nil
}

func (s *Service) DeletePrincipal(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("principal deleted", zap.String("principal_id", id.String()))
	return nil
}

func (s *Service) GetPrincipal(ctx context.Context, id snowflake.ID) (*domain.Principal, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListPrincipals(ctx context.Context, createdBefore time.Time, afterID snowflake.ID, limit int) ([]domain.Principal, error) {
	return s.repo.ListCreatedBefore(ctx, createdBefore, afterID, limit)
}

func (s *Service) SignIn(ctx context.Context, email, rawPassword string) (*domain.SignInResult, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil || rawPassword == "" {
		return nil, domain.ErrInvalidCredentials
	}

	principal, err := s.repo.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if principal.Disabled || !password.Verify(rawPassword, principal.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	raw, expiresAt, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}

	return &domain.SignInResult{
		Token:     raw,
		ExpiresAt: expiresAt,
		Principal: principal,
	}, nil
}

// VerifyToken validates the token and confirms the principal still exists,
// is enabled and has not changed password since the token was issued.
func (s *Service) VerifyToken(ctx context.Context, rawToken string) (*domain.Identity, error) {
	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	id, err := claims.PrincipalID()
	if err != nil {
		return nil, err
	}

	principal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if principal.Disabled {
		return nil, domain.ErrInvalidToken
	}
	if principal.LastPasswordChanged != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(principal.LastPasswordChanged.Truncate(time.Second)) {
		return nil, domain.ErrInvalidToken
	}

	return &domain.Identity{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) ChangePassword(ctx context.Context, id snowflake.ID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.ErrPasswordTooShort
	}

	principal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !password.Verify(currentPassword, principal.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.UpdateFields(ctx, id, map[string]any{
		"password_hash":         hashed,
		"last_password_changed": now,
		"updated_at":            now,
	})
}

func defaultDisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
