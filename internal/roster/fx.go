package roster

import (
	"github.com/smallbiznis/agencydesk/internal/roster/repository"
	"github.com/smallbiznis/agencydesk/internal/roster/service"
	"go.uber.org/fx"
)

var Module = fx.Module("roster.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
