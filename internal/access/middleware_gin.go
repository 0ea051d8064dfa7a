package access

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	obscontext "github.com/smallbiznis/agencydesk/internal/observability/context"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
)

const actorContextKey = "access.actor"

// PrincipalRequired admits any approved roster member.
func (g *Guard) PrincipalRequired() gin.HandlerFunc {
	return g.middleware(g.Authenticate)
}

func (g *Guard) AdminRequired() gin.HandlerFunc {
	return g.middleware(g.RequireAdmin)
}

func (g *Guard) middleware(check func(context.Context, string) (rosterdomain.Actor, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := check(c.Request.Context(), BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(actorContextKey, actor)
		ctx := obscontext.WithActor(c.Request.Context(), auditdomain.ActorTypePrincipal, actor.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorFrom returns the actor stored by PrincipalRequired or AdminRequired.
func ActorFrom(c *gin.Context) (rosterdomain.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return rosterdomain.Actor{}, false
	}
	actor, ok := v.(rosterdomain.Actor)
	return actor, ok
}

func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
