package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agencydesk/internal/approval/domain"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/auth/password"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/observability/metrics"
	"github.com/smallbiznis/agencydesk/internal/ratelimit"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKeyPrefix = "agencydesk:approval:"

type Params struct {
	fx.In

	Log           *zap.Logger
	Config        config.Config
	Registrations regdomain.Repository
	Roster        rosterdomain.Repository
	Auth          authdomain.Service
	Authz         authorization.Service
	Clock         clock.Clock
	Locker        *ratelimit.Locker   `optional:"true"`
	AuditSvc      auditdomain.Service `optional:"true"`
	Metrics       *metrics.Metrics    `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	registrations regdomain.Repository
	roster        rosterdomain.Repository
	auth          authdomain.Service
	authz         authorization.Service
	clock         clock.Clock
	locker        *ratelimit.Locker
	lockTTL       time.Duration
	auditSvc      auditdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:           p.Log.Named("approval.service"),
		registrations: p.Registrations,
		roster:        p.Roster,
		auth:          p.Auth,
		authz:         p.Authz,
		clock:         p.Clock,
		locker:        p.Locker,
		lockTTL:       p.Config.Approval.LockTTL,
		auditSvc:      p.AuditSvc,
		metrics:       p.Metrics,
	}
}

// Approve provisions a principal and a team-member roster record for a pending
// registration, then marks it approved. The credential store and the roster
// share no transaction, so a failed later step undoes the earlier ones.
func (s *Service) Approve(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID) (*domain.ApproveResult, error) {
	return s.approve(ctx, actor, registrationID, nil)
}

func (s *Service) Reject(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID) (*regdomain.Registration, error) {
	return s.reject(ctx, actor, registrationID, nil)
}

// Review validates notes before anything is written, then runs the matching
// transition with the notes folded into it.
func (s *Service) Review(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID, req domain.ReviewRequest) (*domain.ReviewResult, error) {
	var notes *string
	if req.Notes != nil {
		normalized, err := regdomain.NormalizeNotes(*req.Notes)
		if err != nil {
			return nil, err
		}
		notes = &normalized
	}

	switch req.Status {
	case regdomain.StatusApproved:
		res, err := s.approve(ctx, actor, registrationID, notes)
		if err != nil {
			return nil, err
		}
		return &domain.ReviewResult{Approval: res, Registration: res.Registration}, nil
	case regdomain.StatusRejected:
		reg, err := s.reject(ctx, actor, registrationID, notes)
		if err != nil {
			return nil, err
		}
		return &domain.ReviewResult{Registration: reg}, nil
	default:
		return nil, regdomain.ErrInvalidStatus
	}
}

func (s *Service) approve(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID, notes *string) (result *domain.ApproveResult, err error) {
	defer func() { s.metrics.RecordRegistrationTransition("approve", err) }()

	if err := s.authorize(ctx, actor, authorization.ActionRegistrationApprove); err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	defer release()

	reg, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status != regdomain.StatusPending {
		return nil, regdomain.ErrStatusConflict
	}

	secret, err := password.Generate(password.DefaultGeneratedLength)
	if err != nil {
		return nil, err
	}

	principal, err := s.auth.CreatePrincipal(ctx, authdomain.CreatePrincipalRequest{
		Email:       reg.Email,
		Password:    secret,
		DisplayName: reg.FullName(),
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &rosterdomain.AdminUser{
		ID:                 principal.ID,
		Email:              principal.Email,
		DisplayName:        principal.DisplayName,
		Role:               rosterdomain.RoleTeamMember,
		Position:           reg.Position,
		IsApproved:         true,
		TeamRegistrationID: &reg.ID,
		CreatedBy:          actor.ID.String(),
		CreatedByEmail:     actor.Email,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.roster.Create(ctx, user); err != nil {
		s.compensate(ctx, "approve.roster", principal.ID, nil)
		if errors.Is(err, rosterdomain.ErrAlreadyEnrolled) {
			return nil, regdomain.ErrStatusConflict
		}
		return nil, fmt.Errorf("create roster record: %w", err)
	}

	existing := reg.Notes
	if notes != nil {
		existing = *notes
	}
	err = s.registrations.Transition(ctx, reg.ID, regdomain.StatusPending, regdomain.StatusApproved, map[string]any{
		"reviewed_at": now,
		"reviewed_by": actor.Email,
		"notes":       appendNote(existing, credentialsNote(principal.Email, actor.Email, now)),
		"updated_at":  now,
	})
	if err != nil {
		s.compensate(ctx, "approve.transition", principal.ID, &user.ID)
		if errors.Is(err, regdomain.ErrStatusConflict) || errors.Is(err, regdomain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("transition registration: %w", err)
	}

	updated, err := s.registrations.FindByID(ctx, reg.ID)
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx, actor, "registration.approve", reg.ID, map[string]any{
		"principal_id": principal.ID.String(),
		"email":        principal.Email,
	})
	s.log.Info("registration approved",
		zap.String("registration_id", reg.ID.String()),
		zap.String("principal_id", principal.ID.String()),
		zap.String("actor_id", actor.ID.String()),
	)

	return &domain.ApproveResult{
		Password:     secret,
		Registration: updated,
		User:         user,
		ApprovedBy:   actor,
	}, nil
}

func (s *Service) reject(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID, notes *string) (reg *regdomain.Registration, err error) {
	defer func() { s.metrics.RecordRegistrationTransition("reject", err) }()

	if err := s.authorize(ctx, actor, authorization.ActionRegistrationReject); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	// Clearing active_email frees the address for a later application.
	fields := map[string]any{
		"reviewed_at":  now,
		"reviewed_by":  actor.Email,
		"active_email": nil,
		"updated_at":   now,
	}
	if notes != nil {
		fields["notes"] = *notes
	}
	err = s.registrations.Transition(ctx, registrationID, regdomain.StatusPending, regdomain.StatusRejected, fields)
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx, actor, "registration.reject", registrationID, nil)
	return s.registrations.FindByID(ctx, registrationID)
}

// Remove deletes the registration in any status. A roster record that was
// provisioned from it keeps its teamRegistrationId.
func (s *Service) Remove(ctx context.Context, actor rosterdomain.Actor, registrationID snowflake.ID) (err error) {
	defer func() { s.metrics.RecordRegistrationTransition("remove", err) }()

	if err := s.authorize(ctx, actor, authorization.ActionRegistrationRemove); err != nil {
		return err
	}

	reg, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if err := s.registrations.Delete(ctx, registrationID); err != nil {
		return err
	}

	_ = s.audit(ctx, actor, "registration.remove", registrationID, map[string]any{
		"email":  reg.Email,
		"status": string(reg.Status),
	})
	return nil
}

func (s *Service) authorize(ctx context.Context, actor rosterdomain.Actor, action string) error {
	return s.authz.Authorize(ctx, string(actor.Role), authorization.ObjectRegistration, action)
}

// lock takes the per-registration redis lock when one is configured. Without
// redis the conditional updates and unique indexes still let a single
// approval win.
func (s *Service) lock(ctx context.Context, registrationID snowflake.ID) (func(), error) {
	if !s.locker.Enabled() || s.lockTTL <= 0 {
		return func() {}, nil
	}

	held, ok, err := s.locker.TryLock(ctx, lockKeyPrefix+registrationID.String(), s.lockTTL)
	if err != nil {
		s.log.Warn("approval lock unavailable, relying on store constraints", zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, domain.ErrApprovalInProgress
	}
	return func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release approval lock", zap.Error(err))
		}
	}, nil
}

// compensate removes what a failed approval already created. Anything it
// cannot remove is left for the reconcile sweep.
func (s *Service) compensate(ctx context.Context, step string, principalID snowflake.ID, rosterID *snowflake.ID) {
	ctx = context.WithoutCancel(ctx)

	if rosterID != nil {
		err := s.roster.Delete(ctx, *rosterID)
		if errors.Is(err, rosterdomain.ErrNotFound) {
			err = nil
		}
		s.metrics.RecordCompensation(step+".delete_roster", err)
		if err != nil {
			s.log.Error("compensation failed to delete roster record",
				zap.String("user_id", rosterID.String()),
				zap.Error(err),
			)
			return
		}
	}

	err := s.auth.DeletePrincipal(ctx, principalID)
	if errors.Is(err, authdomain.ErrPrincipalNotFound) {
		err = nil
	}
	s.metrics.RecordCompensation(step+".delete_principal", err)
	if err != nil {
		s.log.Error("compensation failed to delete principal",
			zap.String("principal_id", principalID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, actor rosterdomain.Actor, action string, id snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.AuditLog(ctx, actor.Audit(), action, "registration", id.String(), metadata)
}

func credentialsNote(email, reviewer string, at time.Time) string {
	return fmt.Sprintf("Login credentials issued to %s by %s on %s.", email, reviewer, at.Format(time.RFC3339))
}

func appendNote(existing, note string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
