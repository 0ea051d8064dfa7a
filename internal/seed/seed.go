package seed

import (
	"context"
	"errors"
	"strings"

	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const systemCreator = "system"

type Params struct {
	fx.In

	Log        *zap.Logger
	Auth       authdomain.Service
	Principals authdomain.Repository
	Roster     rosterdomain.Repository
	Clock      clock.Clock
	AuditSvc   auditdomain.Service `optional:"true"`
}

// Bootstrapper creates the first administrator so a fresh deployment can be
// signed into.
type Bootstrapper struct {
	log        *zap.Logger
	auth       authdomain.Service
	principals authdomain.Repository
	roster     rosterdomain.Repository
	clock      clock.Clock
	auditSvc   auditdomain.Service
}

func New(p Params) *Bootstrapper {
	return &Bootstrapper{
		log:        p.Log.Named("seed"),
		auth:       p.Auth,
		principals: p.Principals,
		roster:     p.Roster,
		clock:      p.Clock,
		auditSvc:   p.AuditSvc,
	}
}

// EnsureAdmin is a no-op unless bootstrap credentials are configured and the
// roster has no admin yet. An existing principal with the bootstrap email is
// reused; its password is left untouched.
func (b *Bootstrapper) EnsureAdmin(ctx context.Context, cfg config.Config) error {
	email := strings.TrimSpace(cfg.BootstrapAdminEmail)
	if email == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}

	_, total, err := b.roster.List(ctx, rosterdomain.ListFilter{Role: rosterdomain.RoleAdmin, Limit: 1})
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	principal, err := b.auth.CreatePrincipal(ctx, authdomain.CreatePrincipalRequest{
		Email:       email,
		Password:    cfg.BootstrapAdminPassword,
		DisplayName: cfg.BootstrapAdminName,
	})
	if errors.Is(err, authdomain.ErrPrincipalExists) {
		var normalized string
		if normalized, err = authdomain.NormalizeEmail(email); err == nil {
			principal, err = b.principals.FindByEmail(ctx, normalized)
		}
	}
	if err != nil {
		return err
	}

	now := b.clock.Now()
	existing, err := b.roster.FindByID(ctx, principal.ID)
	switch {
	case err == nil:
		err = b.roster.ChangeRole(ctx, existing.ID, rosterdomain.RoleAdmin, map[string]any{
			"is_approved": true,
			"promoted_by": systemCreator,
			"promoted_at": now,
			"updated_at":  now,
		})
		if err != nil && !errors.Is(err, rosterdomain.ErrRoleUnchanged) {
			return err
		}
	case errors.Is(err, rosterdomain.ErrNotFound):
		err = b.roster.Create(ctx, &rosterdomain.AdminUser{
			ID:          principal.ID,
			Email:       principal.Email,
			DisplayName: principal.DisplayName,
			Role:        rosterdomain.RoleAdmin,
			IsApproved:  true,
			CreatedBy:   systemCreator,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
	default:
		return err
	}

	if b.auditSvc != nil {
		_ = b.auditSvc.AuditLog(ctx, auditdomain.SystemActor(systemCreator), "roster.bootstrap_admin", "admin_user", principal.ID.String(), map[string]any{
			"email": principal.Email,
		})
	}
	b.log.Info("bootstrap admin ensured", zap.String("principal_id", principal.ID.String()))
	return nil
}
