package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/jurassik/jurassik/app"
	"github.com/jurassik/jurassik/app/supervise"
)

var (
	runCmdDescription = `The run command starts every process of the configuration
file and supervises it until it exits. Output is written to the
configured destinations.

Processes with restart policy "restart" are restarted after a
delay, up to maxRestart times. A process with policy "panic", or
one that exhausted its restarts, terminates all processes and
exits with status 1.

The command returns once all processes have finished, or when it
receives SIGINT or SIGTERM.`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Start and supervise the configured processes.",
		Description: runCmdDescription,
		Action:      runAction,
	}
)

func runAction(ctx *cli.Context) error {
	shell, cfg, err := app.New(ctx)
	if err != nil {
		return err
	}

	return shell.Run(ctx.Context, supervise.Module(cfg))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, runCmd)
	rootApp.Action = runAction
}
