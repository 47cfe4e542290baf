package supervise

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jurassik/jurassik/config"
	"github.com/jurassik/jurassik/internal/supervisor"
)

type RuntimeParams struct {
	fx.In

	Config config.Config
	Logger *zap.Logger
}

// NewRuntime creates the runtime, resolving relative paths
// against the directory of the config file.
func NewRuntime(params RuntimeParams) (*supervisor.Runtime, error) {
	var baseDir string
	if params.Config.File != "" {
		baseDir = filepath.Dir(params.Config.File)
	}

	return supervisor.NewRuntime(supervisor.RuntimeParams{
		Tee:     params.Config.Tee,
		BaseDir: baseDir,
		Log:     params.Logger,
	})
}

type SupervisorParams struct {
	fx.In

	// Context is cancelled when the application stops
	Context context.Context

	Config  config.Config
	Runtime *supervisor.Runtime
	Logger  *zap.Logger

	// Exit overrides the panic exit. Optional.
	Exit supervisor.ExitFn `optional:"true"`
}

// NewLifecycleSupervisor runs the configured processes once the
// application starts, and shuts the application down once every
// process has finished.
func NewLifecycleSupervisor(
	params SupervisorParams,
	lc fx.Lifecycle,
	sd fx.Shutdowner,
) (*supervisor.Supervisor, error) {
	exit := params.Exit
	if exit == nil {
		exit = panicExit(params.Logger)
	}

	sup, err := supervisor.New(supervisor.Params{
		Runtime: params.Runtime,
		Exit:    exit,
		Log:     params.Logger,
	})
	if err != nil {
		return nil, err
	}

	var stopping atomic.Bool

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				err := sup.Run(params.Context, params.Config.Processes)
				if stopping.Load() {
					return
				}

				if err != nil && !errors.Is(err, supervisor.ErrPanic) {
					params.Logger.Info("supervision ended", zap.Error(err))
				} else {
					params.Logger.Info("all processes finished")
				}

				if err := sd.Shutdown(fx.ExitCode(0)); err != nil {
					params.Logger.Error("failed to shut down", zap.Error(err))
				}
			}()

			params.Logger.Debug("all processes started", zap.Int("count", len(params.Config.Processes)))

			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopping.Store(true)
			return sup.Shutdown(ctx)
		},
	})

	return sup, nil
}

// panicExit reports the panic and ends the program.
func panicExit(log *zap.Logger) supervisor.ExitFn {
	return func(code int) {
		_ = log.Sync()

		sentry.CaptureException(errors.New("supervisor panic"))
		sentry.Flush(2 * time.Second)

		os.Exit(code)
	}
}
