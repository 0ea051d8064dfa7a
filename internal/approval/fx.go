package approval

import (
	"github.com/smallbiznis/agencydesk/internal/approval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("approval.service",
	fx.Provide(service.New),
)
