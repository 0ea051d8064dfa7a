package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	authrepository "github.com/smallbiznis/agencydesk/internal/auth/repository"
	authservice "github.com/smallbiznis/agencydesk/internal/auth/service"
	"github.com/smallbiznis/agencydesk/internal/auth/token"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/config"
	"github.com/smallbiznis/agencydesk/internal/roster/domain"
	"github.com/smallbiznis/agencydesk/internal/roster/repository"
	"github.com/smallbiznis/agencydesk/pkg/db"
	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc   domain.Service
	repo  domain.Repository
	auth  authdomain.Service
	clock *clock.FakeClock
	admin domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, nil)
}

// newFixtureWithRepo wires the service against sqlite. When wrap is set it
// receives the real roster repository and may return a decorated one.
func newFixtureWithRepo(t *testing.T, wrap func(domain.Repository) domain.Repository) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.Principal{}, &domain.AdminUser{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	issuer := token.NewIssuer("0123456789abcdef0123456789abcdef", "agencydesk", time.Hour, clk)
	authSvc := authservice.New(log, authrepository.New(conn), node, clk, issuer)

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	repo := repository.New(conn)
	if wrap != nil {
		repo = wrap(repo)
	}

	f := &fixture{
		svc: New(Params{
			Log:     log,
			Repo:    repo,
			Auth:    authSvc,
			Authz:   authz,
			Classes: config.NewStaticAdminClassHolder(config.DefaultAdminClassConfig()),
			Clock:   clk,
		}),
		repo:  repository.New(conn),
		auth:  authSvc,
		clock: clk,
	}
	f.admin = f.seedUser(t, conn, "root@agency.test", domain.RoleAdmin)
	return f
}

func (f *fixture) seedUser(t *testing.T, conn *gorm.DB, email string, role domain.Role) domain.Actor {
	t.Helper()

	principal, err := f.auth.CreatePrincipal(context.Background(), authdomain.CreatePrincipalRequest{
		Email:    email,
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	now := f.clock.Now()
	user := &domain.AdminUser{
		ID:          principal.ID,
		Email:       principal.Email,
		DisplayName: principal.DisplayName,
		Role:        role,
		IsApproved:  true,
		CreatedBy:   "system",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, conn.Create(user).Error)
	return domain.ActorFromUser(user)
}

func (f *fixture) createMember(t *testing.T, email string) *domain.AdminUser {
	t.Helper()

	res, err := f.svc.CreateAdmin(context.Background(), f.admin, domain.CreateAdminRequest{
		Email:       email,
		DisplayName: "Team Member",
		AdminClass:  "Manager",
	})
	require.NoError(t, err)
	_, err = f.svc.Demote(context.Background(), f.admin, res.User.ID)
	require.NoError(t, err)

	user, err := f.repo.FindByID(context.Background(), res.User.ID)
	require.NoError(t, err)
	return user
}

func TestCreateAdminRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateAdmin(ctx, f.admin, domain.CreateAdminRequest{
		Email:       "a@b.com",
		DisplayName: "A B",
		AdminClass:  "Manager",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(res.Password), 12)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
	assert.True(t, res.User.IsApproved)
	assert.Equal(t, "Manager", res.User.AdminClass)
	assert.Equal(t, f.admin.ID.String(), res.User.CreatedBy)

	list, err := f.svc.List(ctx, f.admin, domain.ListRequest{Search: "a@b.com"})
	require.NoError(t, err)
	require.Len(t, list.Users, 1)
	assert.Equal(t, "a@b.com", list.Users[0].Email)
	assert.Equal(t, domain.RoleAdmin, list.Users[0].Role)
	assert.True(t, list.Users[0].IsApproved)

	_, err = f.auth.SignIn(ctx, "a@b.com", res.Password)
	assert.NoError(t, err)
}

func TestCreateAdminKeepsSuppliedPassword(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateAdmin(context.Background(), f.admin, domain.CreateAdminRequest{
		Email:       "cto@agency.test",
		DisplayName: "Grace Hopper",
		AdminClass:  "cto",
		Password:    "supplied-password",
	})
	require.NoError(t, err)
	assert.Equal(t, "supplied-password", res.Password)
	assert.Equal(t, "CTO", res.User.AdminClass)
}

func TestCreateAdminRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateAdmin(ctx, f.admin, domain.CreateAdminRequest{Email: "dup@agency.test", DisplayName: "Dup", AdminClass: "Lead"})
	require.NoError(t, err)

	_, err = f.svc.CreateAdmin(ctx, f.admin, domain.CreateAdminRequest{Email: "DUP@agency.test", DisplayName: "Dup", AdminClass: "Lead"})
	assert.ErrorIs(t, err, authdomain.ErrPrincipalExists)
}

func TestCreateAdminRejectsUnknownClass(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAdmin(context.Background(), f.admin, domain.CreateAdminRequest{
		Email:       "x@agency.test",
		DisplayName: "X",
		AdminClass:  "Emperor",
	})
	assert.ErrorIs(t, err, config.ErrUnknownAdminClass)
}

type failingCreateRepo struct {
	domain.Repository
	mock.Mock
}

func (r *failingCreateRepo) Create(ctx context.Context, user *domain.AdminUser) error {
	return r.Called(ctx, user).Error(0)
}

func TestCreateAdminCompensatesPrincipalOnRosterFailure(t *testing.T) {
	failing := &failingCreateRepo{}
	f := newFixtureWithRepo(t, func(real domain.Repository) domain.Repository {
		failing.Repository = real
		return failing
	})
	failing.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := f.svc.CreateAdmin(context.Background(), f.admin, domain.CreateAdminRequest{
		Email:       "orphan@agency.test",
		DisplayName: "Orphan",
		AdminClass:  "Lead",
	})
	require.Error(t, err)
	failing.AssertNumberOfCalls(t, "Create", 1)

	_, err = f.auth.SignIn(context.Background(), "orphan@agency.test", "anything")
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	principals, err := f.auth.ListPrincipals(context.Background(), f.clock.Now().Add(time.Hour), 0, 10)
	require.NoError(t, err)
	for _, p := range principals {
		assert.NotEqual(t, "orphan@agency.test", p.Email)
	}
}

func TestPromoteTwiceConflictsWithoutChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.createMember(t, "member@agency.test")

	promoted, err := f.svc.Promote(ctx, f.admin, member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, promoted.Role)
	assert.True(t, promoted.IsApproved)
	require.NotNil(t, promoted.PromotedByEmail)
	assert.Equal(t, f.admin.Email, *promoted.PromotedByEmail)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Promote(ctx, f.admin, member.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyAdmin)

	after, err := f.repo.FindByID(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, promoted.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, promoted.PromotedAt, after.PromotedAt)
}

func TestDemoteKeepsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateAdmin(ctx, f.admin, domain.CreateAdminRequest{Email: "lead@agency.test", DisplayName: "Lead", AdminClass: "Lead"})
	require.NoError(t, err)

	demoted, err := f.svc.Demote(ctx, f.admin, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeamMember, demoted.Role)
	assert.True(t, demoted.IsApproved)
	require.NotNil(t, demoted.DemotedBy)
	assert.Equal(t, f.admin.ID.String(), *demoted.DemotedBy)

	_, err = f.svc.Demote(ctx, f.admin, res.User.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTeamMember)
}

func TestRoleChangeOnMissingUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Promote(context.Background(), f.admin, snowflake.ID(12345))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Demote(context.Background(), f.admin, snowflake.ID(12345))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSelfTargetIsBadRequestRegardlessOfRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := domain.ActorFromUser(f.createMember(t, "self@agency.test"))

	for _, actor := range []domain.Actor{f.admin, member} {
		_, err := f.svc.Demote(ctx, actor, actor.ID)
		assert.ErrorIs(t, err, domain.ErrSelfTarget)
		assert.ErrorIs(t, f.svc.DeleteUser(ctx, actor, actor.ID), domain.ErrSelfTarget)
	}
}

func TestTeamMemberIsForbiddenAndNothingChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := domain.ActorFromUser(f.createMember(t, "member@agency.test"))
	target := f.createMember(t, "target@agency.test")

	before, err := f.repo.FindByID(ctx, target.ID)
	require.NoError(t, err)

	_, err = f.svc.Promote(ctx, member, target.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.svc.Demote(ctx, member, f.admin.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, member, target.ID), authorization.ErrForbidden)
	_, err = f.svc.CreateAdmin(ctx, member, domain.CreateAdminRequest{Email: "new@agency.test", DisplayName: "New", AdminClass: "CEO"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	after, err := f.repo.FindByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	adminAfter, err := f.repo.FindByID(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, adminAfter.Role)

	_, err = f.auth.SignIn(ctx, "new@agency.test", "whatever-password")
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestDeleteUserRemovesPrincipalAndRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.createMember(t, "gone@agency.test")

	require.NoError(t, f.svc.DeleteUser(ctx, f.admin, target.ID))

	_, err := f.repo.FindByID(ctx, target.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.auth.GetPrincipal(ctx, target.ID)
	assert.ErrorIs(t, err, authdomain.ErrPrincipalNotFound)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, f.admin, target.ID), domain.ErrNotFound)
}

func TestDeleteUserToleratesMissingPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := f.createMember(t, "half@agency.test")

	require.NoError(t, f.auth.DeletePrincipal(ctx, target.ID))
	require.NoError(t, f.svc.DeleteUser(ctx, f.admin, target.ID))

	_, err := f.repo.FindByID(ctx, target.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersByRoleAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createMember(t, "m1@agency.test")
	f.createMember(t, "m2@agency.test")
	f.createMember(t, "m3@agency.test")

	res, err := f.svc.List(ctx, f.admin, domain.ListRequest{
		Pagination: pagination.Pagination{Page: 1, Limit: 2},
		Role:       domain.RoleTeamMember,
	})
	require.NoError(t, err)
	assert.Len(t, res.Users, 2)
	assert.EqualValues(t, 3, res.PageInfo.Total)
	assert.True(t, res.PageInfo.HasNext)

	_, err = f.svc.List(ctx, f.admin, domain.ListRequest{Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestTouchLastLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.TouchLastLogin(ctx, f.admin.ID))
	user, err := f.svc.Lookup(ctx, f.admin.ID)
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
	assert.True(t, user.LastLoginAt.Equal(f.clock.Now()))
}
