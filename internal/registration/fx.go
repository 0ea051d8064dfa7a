package registration

import (
	"github.com/smallbiznis/agencydesk/internal/registration/repository"
	"github.com/smallbiznis/agencydesk/internal/registration/service"
	"go.uber.org/fx"
)

var Module = fx.Module("registration.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
