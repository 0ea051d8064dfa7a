package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/auth/password"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/observability/metrics"
	"github.com/smallbiznis/agencydesk/internal/roster/domain"
	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Repo     domain.Repository
	Auth     authdomain.Service
	Authz    authorization.Service
	Classes  *config.AdminClassHolder
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	auth     authdomain.Service
	authz    authorization.Service
	classes  *config.AdminClassHolder
	clock    clock.Clock
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("roster.service"),
		repo:     p.Repo,
		auth:     p.Auth,
		authz:    p.Authz,
		classes:  p.Classes,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) CreateAdmin(ctx context.Context, actor domain.Actor, req domain.CreateAdminRequest) (result *domain.CreateAdminResult, err error) {
	defer func() { s.metrics.RecordRosterChange("create_admin", err) }()

	if err := s.authorize(ctx, actor, authorization.ActionRosterCreate); err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, domain.ErrInvalidDisplayName
	}
	class, err := s.classes.Resolve(req.AdminClass)
	if err != nil {
		return nil, err
	}

	secret := req.Password
	if secret == "" {
		secret, err = password.Generate(password.DefaultGeneratedLength)
		if err != nil {
			return nil, err
		}
	}

	principal, err := s.auth.CreatePrincipal(ctx, authdomain.CreatePrincipalRequest{
		Email:       req.Email,
		Password:    secret,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.AdminUser{
		ID:             principal.ID,
		Email:          principal.Email,
		DisplayName:    displayName,
		Role:           domain.RoleAdmin,
		AdminClass:     class.Label,
		Position:       strings.TrimSpace(req.Position),
		IsApproved:     true,
		CreatedBy:      actor.ID.String(),
		CreatedByEmail: actor.Email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		s.compensatePrincipal(ctx, principal.ID, "create_admin")
		return nil, fmt.Errorf("create roster record: %w", err)
	}

	_ = s.audit(ctx, actor, "roster.create_admin", user.ID, map[string]any{
		"email":       user.Email,
		"admin_class": user.AdminClass,
	})
	s.log.Info("admin created",
		zap.String("user_id", user.ID.String()),
		zap.String("actor_id", actor.ID.String()),
	)

	return &domain.CreateAdminResult{Password: secret, User: user}, nil
}

func (s *Service) Promote(ctx context.Context, actor domain.Actor, id snowflake.ID) (user *domain.AdminUser, err error) {
	defer func() { s.metrics.RecordRosterChange("promote", err) }()

	if err := s.authorize(ctx, actor, authorization.ActionRosterPromote); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	actorID := actor.ID.String()
	actorEmail := actor.Email
	err = s.repo.ChangeRole(ctx, id, domain.RoleAdmin, map[string]any{
		"is_approved":       true,
		"promoted_by":       actorID,
		"promoted_by_email": actorEmail,
		"promoted_at":       now,
		"updated_at":        now,
	})
	if errors.Is(err, domain.ErrRoleUnchanged) {
		return nil, domain.ErrAlreadyAdmin
	}
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx, actor, "roster.promote", id, nil)
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Demote(ctx context.Context, actor domain.Actor, id snowflake.ID) (user *domain.AdminUser, err error) {
	defer func() { s.metrics.RecordRosterChange("demote", err) }()

	if id == actor.ID {
		return nil, domain.ErrSelfTarget
	}
	if err := s.authorize(ctx, actor, authorization.ActionRosterDemote); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.repo.ChangeRole(ctx, id, domain.RoleTeamMember, map[string]any{
		"demoted_by":       actor.ID.String(),
		"demoted_by_email": actor.Email,
		"demoted_at":       now,
		"updated_at":       now,
	})
	if errors.Is(err, domain.ErrRoleUnchanged) {
		return nil, domain.ErrAlreadyTeamMember
	}
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx, actor, "roster.demote", id, nil)
	return s.repo.FindByID(ctx, id)
}

// DeleteUser removes the principal before the roster record. A principal that
// is already gone is tolerated so half-deleted users can still be cleaned up.
func (s *Service) DeleteUser(ctx context.Context, actor domain.Actor, id snowflake.ID) (err error) {
	defer func() { s.metrics.RecordRosterChange("delete", err) }()

	if id == actor.ID {
		return domain.ErrSelfTarget
	}
	if err := s.authorize(ctx, actor, authorization.ActionRosterDelete); err != nil {
		return err
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.auth.DeletePrincipal(ctx, id); err != nil {
		if !errors.Is(err, authdomain.ErrPrincipalNotFound) {
			return fmt.Errorf("delete principal: %w", err)
		}
		s.log.Warn("principal already missing, removing roster record", zap.String("user_id", id.String()))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete roster record: %w", err)
	}

	_ = s.audit(ctx, actor, "roster.delete", id, map[string]any{"email": user.Email})
	return nil
}

func (s *Service) List(ctx context.Context, actor domain.Actor, req domain.ListRequest) (domain.ListResponse, error) {
	if err := s.authorize(ctx, actor, authorization.ActionRosterView); err != nil {
		return domain.ListResponse{}, err
	}
	if req.Role != "" && !req.Role.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidRole
	}

	page := req.Pagination.Normalize()
	users, total, err := s.repo.List(ctx, domain.ListFilter{
		Role:     req.Role,
		Approved: req.Approved,
		Search:   req.Search,
		Offset:   page.Offset(),
		Limit:    page.Limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return domain.ListResponse{Users: users, PageInfo: pagination.BuildPageInfo(page, total)}, nil
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, id snowflake.ID) (*domain.AdminUser, error) {
	if err := s.authorize(ctx, actor, authorization.ActionRosterView); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Lookup(ctx context.Context, id snowflake.ID) (*domain.AdminUser, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) TouchLastLogin(ctx context.Context, id snowflake.ID) error {
	now := s.clock.Now()
	return s.repo.UpdateFields(ctx, id, map[string]any{"last_login_at": now})
}

func (s *Service) authorize(ctx context.Context, actor domain.Actor, action string) error {
	return s.authz.Authorize(ctx, string(actor.Role), authorization.ObjectRoster, action)
}

func (s *Service) compensatePrincipal(ctx context.Context, principalID snowflake.ID, operation string) {
	err := s.auth.DeletePrincipal(context.WithoutCancel(ctx), principalID)
	s.metrics.RecordCompensation(operation+".delete_principal", err)
	if err != nil {
		s.log.Error("compensation failed, principal left for reconciliation",
			zap.String("principal_id", principalID.String()),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, actor domain.Actor, action string, target snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.AuditLog(ctx, actor.Audit(), action, "admin_user", target.String(), metadata)
}
