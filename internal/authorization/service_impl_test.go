package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/agencydesk/pkg/db"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	enforcer, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestAdminMayPerformEveryAction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := [][2]string{
		{ObjectRegistration, ActionRegistrationApprove},
		{ObjectRegistration, ActionRegistrationReject},
		{ObjectRegistration, ActionRegistrationRemove},
		{ObjectRoster, ActionRosterCreate},
		{ObjectRoster, ActionRosterPromote},
		{ObjectRoster, ActionRosterDemote},
		{ObjectRoster, ActionRosterDelete},
		{ObjectAuditLog, ActionAuditLogView},
	}
	for _, tc := range cases {
		if err := svc.Authorize(ctx, RoleAdmin, tc[0], tc[1]); err != nil {
			t.Fatalf("expected admin to be allowed %s/%s, got %v", tc[0], tc[1], err)
		}
	}
}

func TestTeamMemberIsForbiddenFromWorkflowActions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, RoleTeamMember, ObjectRegistration, ActionRegistrationApprove); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Authorize(ctx, RoleTeamMember, ObjectRoster, ActionRosterPromote); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Authorize(ctx, RoleTeamMember, ObjectProfile, ActionProfileView); err != nil {
		t.Fatalf("expected profile view to be allowed, got %v", err)
	}
}

func TestUnknownOrEmptyRoleIsForbidden(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "ceo", ObjectRoster, ActionRosterCreate); err != ErrForbidden {
		t.Fatalf("expected admin class labels to carry no permissions, got %v", err)
	}
	if err := svc.Authorize(ctx, "", ObjectRoster, ActionRosterCreate); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for empty role, got %v", err)
	}
}

func TestSeedingIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := NewEnforcer(conn); err != nil {
		t.Fatalf("first enforcer: %v", err)
	}
	if _, err := NewEnforcer(conn); err != nil {
		t.Fatalf("second enforcer: %v", err)
	}
	var rows int64
	if err := conn.Table("casbin_rule").Count(&rows).Error; err != nil {
		t.Fatalf("count policies: %v", err)
	}
	if rows != 2 {
		t.Fatalf("expected 2 seeded policies, got %d", rows)
	}
}
