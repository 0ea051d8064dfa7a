package access

import (
	"context"
	"errors"
	"strings"

	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	obscontext "github.com/smallbiznis/agencydesk/internal/observability/context"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrUnauthenticated covers a missing or invalid token as well as a
	// principal with no approved roster record.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = authorization.ErrForbidden
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Auth   authdomain.Service
	Roster rosterdomain.Service
	Authz  authorization.Service
}

type Guard struct {
	log    *zap.Logger
	auth   authdomain.Service
	roster rosterdomain.Service
	authz  authorization.Service
}

func NewGuard(p Params) *Guard {
	return &Guard{
		log:    p.Log.Named("access.guard"),
		auth:   p.Auth,
		roster: p.Roster,
		authz:  p.Authz,
	}
}

// Authenticate resolves a bearer token to an approved roster member.
func (g *Guard) Authenticate(ctx context.Context, bearer string) (rosterdomain.Actor, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return rosterdomain.Actor{}, ErrUnauthenticated
	}

	identity, err := g.auth.VerifyToken(ctx, bearer)
	if err != nil {
		if errors.Is(err, authdomain.ErrInvalidToken) {
			return rosterdomain.Actor{}, ErrUnauthenticated
		}
		return rosterdomain.Actor{}, err
	}

	user, err := g.roster.Lookup(ctx, identity.PrincipalID)
	if err != nil {
		if errors.Is(err, rosterdomain.ErrNotFound) {
			g.log.Debug("verified principal has no roster record", zap.String("principal_id", identity.PrincipalID.String()))
			return rosterdomain.Actor{}, ErrUnauthenticated
		}
		return rosterdomain.Actor{}, err
	}
	if !user.IsApproved {
		return rosterdomain.Actor{}, ErrUnauthenticated
	}

	return rosterdomain.ActorFromUser(user), nil
}

// RequireAdmin is Authenticate plus the role check. The two failure kinds
// stay distinct: ErrUnauthenticated for identity, ErrForbidden for role.
func (g *Guard) RequireAdmin(ctx context.Context, bearer string) (rosterdomain.Actor, error) {
	actor, err := g.Authenticate(ctx, bearer)
	if err != nil {
		return rosterdomain.Actor{}, err
	}
	ctx = obscontext.WithActor(ctx, auditdomain.ActorTypePrincipal, actor.ID.String())
	if err := g.authz.Authorize(ctx, string(actor.Role), authorization.ObjectAdminPanel, authorization.ActionAdminPanelEnter); err != nil {
		return rosterdomain.Actor{}, err
	}
	return actor, nil
}
