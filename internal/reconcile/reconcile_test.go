package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	authrepository "github.com/smallbiznis/agencydesk/internal/auth/repository"
	authservice "github.com/smallbiznis/agencydesk/internal/auth/service"
	"github.com/smallbiznis/agencydesk/internal/auth/token"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	rosterrepository "github.com/smallbiznis/agencydesk/internal/roster/repository"
	"github.com/smallbiznis/agencydesk/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	sweeper *Sweeper
	auth    authdomain.Service
	roster  rosterdomain.Repository
	conn    *gorm.DB
	clock   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.Principal{}, &rosterdomain.AdminUser{}, &regdomain.Registration{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	issuer := token.NewIssuer("0123456789abcdef0123456789abcdef", "agencydesk", time.Hour, clk)
	authSvc := authservice.New(log, authrepository.New(conn), node, clk, issuer)
	roster := rosterrepository.New(conn)

	cfg := config.Config{Reconcile: config.ReconcileConfig{GracePeriod: 10 * time.Minute}}
	return &fixture{
		sweeper: NewSweeper(Params{Log: log, Config: cfg, Auth: authSvc, Roster: roster, Clock: clk}),
		auth:    authSvc,
		roster:  roster,
		conn:    conn,
		clock:   clk,
	}
}

func (f *fixture) principal(t *testing.T, email string) *authdomain.Principal {
	t.Helper()
	p, err := f.auth.CreatePrincipal(context.Background(), authdomain.CreatePrincipalRequest{Email: email, Password: "correct-horse"})
	require.NoError(t, err)
	return p
}

func (f *fixture) enroll(t *testing.T, id snowflake.ID, email string) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.roster.Create(context.Background(), &rosterdomain.AdminUser{
		ID:          id,
		Email:       email,
		DisplayName: email,
		Role:        rosterdomain.RoleTeamMember,
		IsApproved:  true,
		CreatedBy:   "system",
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func TestSweepRemovesOrphansPastGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kept := f.principal(t, "kept@agency.test")
	f.enroll(t, kept.ID, kept.Email)
	orphan := f.principal(t, "orphan@agency.test")
	f.enroll(t, snowflake.ID(424242), "ghost@agency.test")

	f.clock.Advance(time.Hour)
	fresh := f.principal(t, "fresh@agency.test")

	report, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{orphan.ID}, report.OrphanPrincipals)
	assert.Equal(t, []snowflake.ID{snowflake.ID(424242)}, report.OrphanRosterEntries)
	assert.Zero(t, report.Failures)

	_, err = f.auth.GetPrincipal(ctx, orphan.ID)
	assert.ErrorIs(t, err, authdomain.ErrPrincipalNotFound)
	_, err = f.roster.FindByID(ctx, snowflake.ID(424242))
	assert.ErrorIs(t, err, rosterdomain.ErrNotFound)

	_, err = f.auth.GetPrincipal(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = f.auth.GetPrincipal(ctx, fresh.ID)
	assert.NoError(t, err, "principals inside the grace period belong to in-flight approvals")
}

func TestSweepLeavesRegistrationsAlone(t *testing.T) {
	f := newFixture(t)

	reg := &regdomain.Registration{
		ID:          snowflake.ID(77),
		FirstName:   "Jo",
		LastName:    "Doe",
		Email:       "jo@x.com",
		Status:      regdomain.StatusApproved,
		SubmittedAt: f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, f.conn.Create(reg).Error)
	f.clock.Advance(time.Hour)

	report, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.OrphanPrincipals)
	assert.Empty(t, report.OrphanRosterEntries)

	var count int64
	require.NoError(t, f.conn.Model(&regdomain.Registration{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSweepPagesThroughPrincipals(t *testing.T) {
	f := newFixture(t)

	now := f.clock.Now()
	for i := 1; i <= batchSize+5; i++ {
		id := snowflake.ID(i)
		require.NoError(t, f.conn.Create(&authdomain.Principal{
			ID:           id,
			Email:        "bulk" + id.String() + "@agency.test",
			PasswordHash: "unused",
			CreatedAt:    now,
			UpdatedAt:    now,
		}).Error)
	}
	f.clock.Advance(time.Hour)

	report, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchSize+5, report.PrincipalsScanned)
	assert.Len(t, report.OrphanPrincipals, batchSize+5)
}

func TestNewSchedulerDisabled(t *testing.T) {
	f := newFixture(t)
	lc := fxtest.NewLifecycle(t)

	s, err := NewScheduler(lc, config.Config{}, f.sweeper, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	lc := fxtest.NewLifecycle(t)

	cfg := config.Config{Reconcile: config.ReconcileConfig{Enabled: true, Schedule: "every now and then"}}
	_, err := NewScheduler(lc, cfg, f.sweeper, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestSchedulerStartsAndStops(t *testing.T) {
	f := newFixture(t)
	lc := fxtest.NewLifecycle(t)

	cfg := config.Config{Reconcile: config.ReconcileConfig{Enabled: true, Schedule: "@every 1h"}}
	s, err := NewScheduler(lc, cfg, f.sweeper, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, s)

	lc.RequireStart()
	assert.Len(t, s.cron.Entries(), 1)
	lc.RequireStop()
}
