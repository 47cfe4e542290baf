package app

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/jurassik/jurassik/config"
	"github.com/jurassik/jurassik/internal/shell"
	"github.com/jurassik/jurassik/util/conf"
	"github.com/jurassik/jurassik/util/logging"
)

// New creates a shell from the logger and config in the cli context.
func New(ctx *cli.Context) (*shell.Shell, config.Config, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, config.Config{}, err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, config.Config{}, err
	}

	sharedModule := fx.Module(
		"shared",
		// provide global config
		fx.Supply(cfg),
	)

	return shell.New(log, sharedModule), cfg, nil
}
