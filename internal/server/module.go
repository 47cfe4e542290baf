package server

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jurassik/jurassik/util/logging"
)

// Module serves the status routes of the StatusSource in the
// container. It is empty when the server is disabled.
func Module(config HttpConfig) fx.Option {
	if !config.Enabled {
		return fx.Options()
	}

	return fx.Module("server",
		// rename logger for module
		logging.DecorateLogger("server"),
		// provide config
		fx.Supply(config),
		// provide status handlers
		fx.Provide(
			fx.Annotate(
				StatusHandlers,
				fx.ResultTags(`group:"handlers,flatten"`),
			),
		),
		// provide server
		fx.Provide(NewLifecycleServer),
		// invoke server
		fx.Invoke(func(*HttpServer) {}),
	)
}

// logger is used when no logger is injected.
func logger(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
