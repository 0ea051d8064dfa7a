package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/agencydesk/internal/approval/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	authrepository "github.com/smallbiznis/agencydesk/internal/auth/repository"
	authservice "github.com/smallbiznis/agencydesk/internal/auth/service"
	"github.com/smallbiznis/agencydesk/internal/auth/token"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/ratelimit"
	regdomain "github.com/smallbiznis/agencydesk/internal/registration/domain"
	regrepository "github.com/smallbiznis/agencydesk/internal/registration/repository"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	rosterrepository "github.com/smallbiznis/agencydesk/internal/roster/repository"
	"github.com/smallbiznis/agencydesk/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var (
	testAdmin  = rosterdomain.Actor{ID: 1, Email: "root@agency.test", Role: rosterdomain.RoleAdmin}
	testMember = rosterdomain.Actor{ID: 2, Email: "member@agency.test", Role: rosterdomain.RoleTeamMember}
)

type fixture struct {
	conn          *gorm.DB
	node          *snowflake.Node
	clock         *clock.FakeClock
	auth          authdomain.Service
	registrations regdomain.Repository
	roster        rosterdomain.Repository
	params        Params
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.Principal{}, &regdomain.Registration{}, &rosterdomain.AdminUser{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	issuer := token.NewIssuer("0123456789abcdef0123456789abcdef", "agencydesk", time.Hour, clk)
	authSvc := authservice.New(log, authrepository.New(conn), node, clk, issuer)

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	f := &fixture{
		conn:          conn,
		node:          node,
		clock:         clk,
		auth:          authSvc,
		registrations: regrepository.New(conn),
		roster:        rosterrepository.New(conn),
	}
	f.params = Params{
		Log:           log,
		Config:        config.Config{Approval: config.ApprovalConfig{LockTTL: 30 * time.Second}},
		Registrations: f.registrations,
		Roster:        f.roster,
		Auth:          authSvc,
		Authz:         authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		Clock:         clk,
	}
	return f
}

func (f *fixture) service() domain.Service {
	return New(f.params)
}

func (f *fixture) submit(t *testing.T, email string) *regdomain.Registration {
	t.Helper()

	active := email
	now := f.clock.Now()
	reg := &regdomain.Registration{
		ID:          f.node.Generate(),
		FirstName:   "Jo",
		LastName:    "Doe",
		Email:       email,
		ActiveEmail: &active,
		Position:    "QA Engineer",
		Experience:  "1-3",
		Skills:      "Selenium",
		CoverLetter: "...",
		Status:      regdomain.StatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.registrations.Create(context.Background(), reg))
	return reg
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()

	var n int64
	require.NoError(t, f.conn.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func TestApproveProvisionsTeamMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.submit(t, "jo@x.com")

	res, err := f.service().Approve(ctx, testAdmin, reg.ID)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(res.Password), 12)
	assert.Equal(t, testAdmin, res.ApprovedBy)
	assert.Equal(t, regdomain.StatusApproved, res.Registration.Status)
	require.NotNil(t, res.Registration.ReviewedAt)
	require.NotNil(t, res.Registration.ReviewedBy)
	assert.Equal(t, testAdmin.Email, *res.Registration.ReviewedBy)
	assert.NotContains(t, res.Registration.Notes, res.Password)
	assert.Contains(t, res.Registration.Notes, "credentials issued")

	user, err := f.roster.FindByRegistrationID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, rosterdomain.RoleTeamMember, user.Role)
	assert.True(t, user.IsApproved)
	assert.Equal(t, "Jo Doe", user.DisplayName)
	assert.Equal(t, testAdmin.ID.String(), user.CreatedBy)
	require.NotNil(t, user.TeamRegistrationID)
	assert.Equal(t, reg.ID, *user.TeamRegistrationID)

	signIn, err := f.auth.SignIn(ctx, "jo@x.com", res.Password)
	require.NoError(t, err)
	assert.Equal(t, user.ID, signIn.Principal.ID)
}

func TestApproveRequiresPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service()
	reg := f.submit(t, "jo@x.com")

	_, err := svc.Approve(ctx, testAdmin, reg.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, testAdmin, reg.ID)
	assert.ErrorIs(t, err, regdomain.ErrStatusConflict)
	_, err = svc.Reject(ctx, testAdmin, reg.ID)
	assert.ErrorIs(t, err, regdomain.ErrStatusConflict)

	_, err = svc.Approve(ctx, testAdmin, snowflake.ID(404))
	assert.ErrorIs(t, err, regdomain.ErrNotFound)

	assert.EqualValues(t, 1, f.count(t, &rosterdomain.AdminUser{}, "team_registration_id = ?", reg.ID))
}

func TestConcurrentApproveCreatesExactlyOnePair(t *testing.T) {
	f := newFixture(t)
	reg := f.submit(t, "race@x.com")
	svc := f.service()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Approve(context.Background(), testAdmin, reg.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		conflict := errors.Is(err, regdomain.ErrStatusConflict) || errors.Is(err, authdomain.ErrPrincipalExists)
		assert.True(t, conflict, "unexpected error: %v", err)
	}
	assert.EqualValues(t, 1, f.count(t, &authdomain.Principal{}, "email = ?", "race@x.com"))
	assert.EqualValues(t, 1, f.count(t, &rosterdomain.AdminUser{}, "team_registration_id = ?", reg.ID))
}

func TestApproveRejectsWhileLockHeld(t *testing.T) {
	f := newFixture(t)
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.params.Locker = ratelimit.NewLocker(client)
	reg := f.submit(t, "locked@x.com")

	held, ok, err := f.params.Locker.TryLock(context.Background(), lockKeyPrefix+reg.ID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.service().Approve(context.Background(), testAdmin, reg.ID)
	assert.ErrorIs(t, err, domain.ErrApprovalInProgress)
	assert.EqualValues(t, 0, f.count(t, &authdomain.Principal{}, "email = ?", "locked@x.com"))

	require.NoError(t, held.Release(context.Background()))
	_, err = f.service().Approve(context.Background(), testAdmin, reg.ID)
	require.NoError(t, err)
	assert.False(t, srv.Exists(lockKeyPrefix+reg.ID.String()))
}

func TestRejectNeverProvisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.submit(t, "no@x.com")

	rejected, err := f.service().Reject(ctx, testAdmin, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, regdomain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewedAt)
	assert.Equal(t, testAdmin.Email, *rejected.ReviewedBy)
	assert.Equal(t, reg.Notes, rejected.Notes)
	assert.Nil(t, rejected.ActiveEmail)

	assert.EqualValues(t, 0, f.count(t, &authdomain.Principal{}, "email = ?", "no@x.com"))
	assert.EqualValues(t, 0, f.count(t, &rosterdomain.AdminUser{}, "team_registration_id = ?", reg.ID))

	// The address is free again once rejected.
	f.submit(t, "no@x.com")
}

func TestRemoveDeletesWithoutCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service()
	reg := f.submit(t, "gone@x.com")

	res, err := svc.Approve(ctx, testAdmin, reg.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, testAdmin, reg.ID))
	_, err = f.registrations.FindByID(ctx, reg.ID)
	assert.ErrorIs(t, err, regdomain.ErrNotFound)

	user, err := f.roster.FindByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, *user.TeamRegistrationID)

	assert.ErrorIs(t, svc.Remove(ctx, testAdmin, reg.ID), regdomain.ErrNotFound)
}

func TestTeamMemberIsForbiddenAndRegistrationUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service()
	reg := f.submit(t, "snap@x.com")

	before, err := f.registrations.FindByID(ctx, reg.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, testMember, reg.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = svc.Reject(ctx, testMember, reg.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.ErrorIs(t, svc.Remove(ctx, testMember, reg.ID), authorization.ErrForbidden)

	after, err := f.registrations.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.EqualValues(t, 0, f.count(t, &authdomain.Principal{}, "email = ?", "snap@x.com"))
}

type rosterRepoMock struct {
	rosterdomain.Repository
	mock.Mock
}

func (m *rosterRepoMock) Create(ctx context.Context, user *rosterdomain.AdminUser) error {
	return m.Called(ctx, user).Error(0)
}

func TestApproveCompensatesWhenRosterWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.submit(t, "comp@x.com")

	roster := &rosterRepoMock{Repository: f.roster}
	roster.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	f.params.Roster = roster

	_, err := f.service().Approve(ctx, testAdmin, reg.ID)
	require.Error(t, err)
	roster.AssertExpectations(t)

	assert.EqualValues(t, 0, f.count(t, &authdomain.Principal{}, "email = ?", "comp@x.com"))
	got, err := f.registrations.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, regdomain.StatusPending, got.Status)
}

type registrationRepoMock struct {
	regdomain.Repository
	mock.Mock
}

func (m *registrationRepoMock) Transition(ctx context.Context, id snowflake.ID, from, to regdomain.Status, fields map[string]any) error {
	return m.Called(ctx, id, from, to, fields).Error(0)
}

func TestApproveCompensatesWhenTransitionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.submit(t, "late@x.com")

	registrations := &registrationRepoMock{Repository: f.registrations}
	registrations.On("Transition", mock.Anything, reg.ID, regdomain.StatusPending, regdomain.StatusApproved, mock.Anything).
		Return(regdomain.ErrStatusConflict)
	f.params.Registrations = registrations

	_, err := f.service().Approve(ctx, testAdmin, reg.ID)
	assert.ErrorIs(t, err, regdomain.ErrStatusConflict)
	registrations.AssertExpectations(t)

	assert.EqualValues(t, 0, f.count(t, &authdomain.Principal{}, "email = ?", "late@x.com"))
	assert.EqualValues(t, 0, f.count(t, &rosterdomain.AdminUser{}, "team_registration_id = ?", reg.ID))
}

func TestReviewWritesNotesWithTheTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service()

	approved := f.submit(t, "jo@x.com")
	notes := "  strong portfolio "
	res, err := svc.Review(ctx, testAdmin, approved.ID, domain.ReviewRequest{Status: regdomain.StatusApproved, Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, res.Approval)
	assert.NotEmpty(t, res.Approval.Password)
	assert.True(t, strings.HasPrefix(res.Registration.Notes, "strong portfolio\n"))
	assert.Contains(t, res.Registration.Notes, "credentials issued")

	rejected := f.submit(t, "bo@x.com")
	notes = "not now"
	res, err = svc.Review(ctx, testAdmin, rejected.ID, domain.ReviewRequest{Status: regdomain.StatusRejected, Notes: &notes})
	require.NoError(t, err)
	assert.Nil(t, res.Approval)
	assert.Equal(t, regdomain.StatusRejected, res.Registration.Status)
	assert.Equal(t, "not now", res.Registration.Notes)
}

func TestReviewLeavesReviewedRecordUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service()

	reg := f.submit(t, "jo@x.com")
	_, err := svc.Reject(ctx, testAdmin, reg.ID)
	require.NoError(t, err)
	before, err := f.registrations.FindByID(ctx, reg.ID)
	require.NoError(t, err)

	notes := "overwritten"
	_, err = svc.Review(ctx, testAdmin, reg.ID, domain.ReviewRequest{Status: regdomain.StatusApproved, Notes: &notes})
	assert.ErrorIs(t, err, regdomain.ErrStatusConflict)
	_, err = svc.Review(ctx, testAdmin, reg.ID, domain.ReviewRequest{Status: regdomain.StatusRejected, Notes: &notes})
	assert.ErrorIs(t, err, regdomain.ErrStatusConflict)

	after, err := f.registrations.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Notes, after.Notes)
	assert.Equal(t, regdomain.StatusRejected, after.Status)
	assert.Zero(t, f.count(t, &authdomain.Principal{}, "email = ?", "jo@x.com"))
}

func TestReviewValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.service()
	reg := f.submit(t, "jo@x.com")

	long := strings.Repeat("x", regdomain.MaxNotesLength+1)
	_, err := svc.Review(ctx, testAdmin, reg.ID, domain.ReviewRequest{Status: regdomain.StatusApproved, Notes: &long})
	assert.ErrorIs(t, err, regdomain.ErrNotesTooLong)

	_, err = svc.Review(ctx, testAdmin, reg.ID, domain.ReviewRequest{Status: regdomain.StatusPending})
	assert.ErrorIs(t, err, regdomain.ErrInvalidStatus)

	got, err := f.registrations.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, regdomain.StatusPending, got.Status)
	assert.Empty(t, got.Notes)
	assert.Zero(t, f.count(t, &authdomain.Principal{}, "email = ?", "jo@x.com"))
}
