package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jurassik/jurassik/config"
	"github.com/jurassik/jurassik/internal/shell"
	"github.com/jurassik/jurassik/util/conf"
	"github.com/jurassik/jurassik/util/logging"
)

var (
	appName  = "jurassik"
	appUsage = `A supervisor that launches the processes of a config file,
captures their output to log files and restarts them on failure.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "the configuration file. YAML, or JSON if the file ends in .json.",
				Aliases: []string{"c"},
				Value:   config.DefaultFileName,
				EnvVars: []string{"JURASSIK_CONFIG_FILE"},
			},
			// log flags
			&cli.StringFlag{
				Name:     "log",
				Usage:    "write the diagnostic log to this file instead of stderr.",
				Aliases:  []string{"l"},
				Category: "log",
				EnvVars:  []string{"JURASSIK_LOG"},
			},
			&cli.BoolFlag{
				Name:     "verbose",
				Usage:    "enable debug logging.",
				Aliases:  []string{"v"},
				Category: "log",
				EnvVars:  []string{"JURASSIK_VERBOSE"},
			},
			&cli.BoolFlag{
				Name:     "tee",
				Usage:    "mirror output written to files to the console.",
				Aliases:  []string{"t"},
				Category: "log",
				EnvVars:  []string{"JURASSIK_TEE"},
			},
			&cli.StringFlag{
				Name:     "log-level",
				Usage:    "set the log level. Options: debug, info, warn, error.",
				Category: "log",
				EnvVars:  []string{"JURASSIK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:     "log-format",
				Usage:    "set the log format. Options: jurassik, production, development.",
				Category: "log",
				EnvVars:  []string{"JURASSIK_LOG_FORMAT"},
			},
			// status flags
			&cli.BoolFlag{
				Name:     "status",
				Usage:    "serve the process status over http.",
				Category: "status",
				EnvVars:  []string{"JURASSIK_STATUS"},
			},
			&cli.StringFlag{
				Name:     "status-host",
				Usage:    "the host the status server listens on.",
				Category: "status",
				EnvVars:  []string{"JURASSIK_STATUS_HOST"},
			},
			&cli.IntFlag{
				Name:     "status-port",
				Usage:    "the port the status server listens on.",
				Category: "status",
				EnvVars:  []string{"JURASSIK_STATUS_PORT"},
			},
			&cli.BoolFlag{
				Name:     "status-h2c",
				Usage:    "enable HTTP/2 cleartext upgrade for the status server.",
				Category: "status",
				EnvVars:  []string{"JURASSIK_STATUS_H2C"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// the flags configure logging until the config is loaded
			bootLog, err := createLogger(logOptionsFromCLI(ctx))
			if err != nil {
				return err
			}

			cfg, err := config.Load(config.LoadOptions{
				Cli:      ctx,
				FileName: ctx.String("config"),
				Log:      bootLog,
			})
			if err != nil {
				bootLog.Error("failed to load configuration", zap.Error(err))
				_ = bootLog.Sync()
				return err
			}

			// the config may change the log settings
			log, err := createLogger(logOptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			_ = bootLog.Sync()

			log.Info(fmt.Sprintf("Hello, from Jurassik! Version: %s", ctx.App.Version))

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return nil
			}

			_ = log.Sync()

			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

// Execute runs the cli and returns the exit code.
func Execute(params ExecuteParams) int {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	return run(context.Background(), os.Args)
}

// run executes the app and returns the exit code of the process.
func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return 0
	}

	// if app exited with ExitError, exit with given exit code
	var exitErr *shell.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// otherwise, exit with exit code 1
	return 1
}

func createLogger(opts logging.Options) (*zap.Logger, error) {
	return logging.NewLogger(opts)
}

func logOptionsFromCLI(ctx *cli.Context) logging.Options {
	return logging.Options{
		Format:  ctx.String("log-format"),
		Level:   ctx.String("log-level"),
		Verbose: ctx.Bool("verbose"),
		File:    ctx.String("log"),
		Tee:     ctx.Bool("tee"),
	}
}

func logOptionsFromConfig(cfg config.Config) logging.Options {
	return logging.Options{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Verbose: cfg.Verbose,
		File:    cfg.Log,
		Tee:     cfg.Tee,
	}
}
