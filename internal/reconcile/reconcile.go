package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/observability/metrics"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	batchSize = 200

	KindOrphanPrincipal = "orphan_principal"
	KindOrphanRoster    = "orphan_roster"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Auth     authdomain.Service
	Roster   rosterdomain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

// Sweeper removes the leftovers of multi-step operations whose compensation
// did not run to completion: principals with no roster record and roster
// records whose principal is gone. Registrations are never touched.
type Sweeper struct {
	log         *zap.Logger
	auth        authdomain.Service
	roster      rosterdomain.Repository
	clock       clock.Clock
	gracePeriod time.Duration
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

type Report struct {
	StartedAt           time.Time      `json:"startedAt"`
	Cutoff              time.Time      `json:"cutoff"`
	PrincipalsScanned   int            `json:"principalsScanned"`
	RosterScanned       int            `json:"rosterScanned"`
	OrphanPrincipals    []snowflake.ID `json:"orphanPrincipals"`
	OrphanRosterEntries []snowflake.ID `json:"orphanRosterEntries"`
	Failures            int            `json:"failures"`
}

func NewSweeper(p Params) *Sweeper {
	return &Sweeper{
		log:         p.Log.Named("reconcile"),
		auth:        p.Auth,
		roster:      p.Roster,
		clock:       p.Clock,
		gracePeriod: p.Config.Reconcile.GracePeriod,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

// Sweep only considers records older than the grace period so an approval
// that is still between its steps is left alone.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	now := s.clock.Now()
	report := &Report{StartedAt: now, Cutoff: now.Add(-s.gracePeriod)}

	if err := s.sweepPrincipals(ctx, report); err != nil {
		return report, err
	}
	if err := s.sweepRoster(ctx, report); err != nil {
		return report, err
	}

	s.metrics.RecordReconcileRemoved(KindOrphanPrincipal, len(report.OrphanPrincipals))
	s.metrics.RecordReconcileRemoved(KindOrphanRoster, len(report.OrphanRosterEntries))
	if len(report.OrphanPrincipals) > 0 || len(report.OrphanRosterEntries) > 0 || report.Failures > 0 {
		s.log.Info("reconcile sweep removed orphans",
			zap.Int("orphan_principals", len(report.OrphanPrincipals)),
			zap.Int("orphan_roster", len(report.OrphanRosterEntries)),
			zap.Int("failures", report.Failures),
		)
	}
	return report, nil
}

func (s *Sweeper) sweepPrincipals(ctx context.Context, report *Report) error {
	var afterID snowflake.ID
	for {
		page, err := s.auth.ListPrincipals(ctx, report.Cutoff, afterID, batchSize)
		if err != nil {
			return err
		}
		for _, principal := range page {
			report.PrincipalsScanned++
			afterID = principal.ID

			_, err := s.roster.FindByID(ctx, principal.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, rosterdomain.ErrNotFound) {
				return err
			}

			if err := s.auth.DeletePrincipal(ctx, principal.ID); err != nil && !errors.Is(err, authdomain.ErrPrincipalNotFound) {
				report.Failures++
				s.log.Warn("failed to delete orphan principal", zap.String("principal_id", principal.ID.String()), zap.Error(err))
				continue
			}
			report.OrphanPrincipals = append(report.OrphanPrincipals, principal.ID)
			s.audit(ctx, "reconcile.delete_principal", "principal", principal.ID, principal.Email)
		}
		if len(page) < batchSize {
			return nil
		}
	}
}

func (s *Sweeper) sweepRoster(ctx context.Context, report *Report) error {
	var orphans []rosterdomain.AdminUser
	for offset := 0; ; offset += batchSize {
		users, _, err := s.roster.List(ctx, rosterdomain.ListFilter{Offset: offset, Limit: batchSize})
		if err != nil {
			return err
		}
		for _, user := range users {
			report.RosterScanned++
			if !user.CreatedAt.Before(report.Cutoff) {
				continue
			}
			_, err := s.auth.GetPrincipal(ctx, user.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, authdomain.ErrPrincipalNotFound) {
				return err
			}
			orphans = append(orphans, user)
		}
		if len(users) < batchSize {
			break
		}
	}

	for _, user := range orphans {
		if err := s.roster.Delete(ctx, user.ID); err != nil && !errors.Is(err, rosterdomain.ErrNotFound) {
			report.Failures++
			s.log.Warn("failed to delete orphan roster record", zap.String("user_id", user.ID.String()), zap.Error(err))
			continue
		}
		report.OrphanRosterEntries = append(report.OrphanRosterEntries, user.ID)
		s.audit(ctx, "reconcile.delete_roster", "admin_user", user.ID, user.Email)
	}
	return nil
}

func (s *Sweeper) audit(ctx context.Context, action, targetType string, id snowflake.ID, email string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.SystemActor("reconcile"), action, targetType, id.String(), map[string]any{
		"email": email,
	})
}
