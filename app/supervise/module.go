package supervise

import (
	"go.uber.org/fx"

	"github.com/jurassik/jurassik/config"
	"github.com/jurassik/jurassik/internal/server"
	"github.com/jurassik/jurassik/internal/supervisor"
	"github.com/jurassik/jurassik/util/logging"
)

func Module(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Module(
			"supervise",
			// rename logger for module
			logging.DecorateLogger("supervise"),
			// provide runtime
			fx.Provide(NewRuntime),
			// provide supervisor
			fx.Provide(NewLifecycleSupervisor),
			// expose process statuses to the status server
			fx.Provide(func(sup *supervisor.Supervisor) server.StatusSource { return sup }),
			// invoke supervisor
			fx.Invoke(func(*supervisor.Supervisor) {}),
		),
		// provide status server, if enabled
		server.Module(cfg.Status),
	)
}
