package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jurassik/jurassik/config"
	"github.com/jurassik/jurassik/internal/shell"
	"github.com/jurassik/jurassik/util/conf"
)

var validateCmd = &cli.Command{
	Name:   "validate",
	Usage:  "Check the configuration file and list invalid processes.",
	Action: validateAction,
}

func validateAction(ctx *cli.Context) error {
	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	out := ctx.App.Writer

	for _, invalid := range cfg.Invalid {
		fmt.Fprintln(out, invalid.Error())
	}

	fmt.Fprintf(out, "%s: %d valid, %d invalid processes\n", cfg.File, len(cfg.Processes), len(cfg.Invalid))

	if len(cfg.Invalid) > 0 {
		return shell.NewExitError(1)
	}

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, validateCmd)
}
