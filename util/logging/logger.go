package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jurassik/jurassik/internal/sink"
)

const (
	FormatJurassik    = "jurassik"
	FormatProduction  = "production"
	FormatDevelopment = "development"
)

type Options struct {
	// Format is one of jurassik, production or development
	Format string

	// Level is the minimum log level. Verbose overrides it with debug.
	Level string

	Verbose bool

	// File redirects the log from stderr to the given file
	File string

	// Tee keeps writing to stderr when File is set
	Tee bool
}

// NewLogger builds the diagnostic logger.
func NewLogger(opts Options) (*zap.Logger, error) {
	var config zap.Config
	switch opts.Format {
	case FormatProduction:
		config = zap.NewProductionConfig()
	case FormatDevelopment:
		config = zap.NewDevelopmentConfig()
	case FormatJurassik, "":
		config = newJurassikConfig()
	default:
		return nil, fmt.Errorf("unknown log format: %s", opts.Format)
	}

	config.Level = parseLevel(opts.Level)
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	if opts.File != "" {
		if err := sink.EnsureDir(opts.File); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		config.OutputPaths = []string{opts.File}
		if opts.Tee {
			config.OutputPaths = append(config.OutputPaths, "stderr")
		}
	}

	return config.Build()
}

// newJurassikConfig logs `<ts>\t<msg>\t{fields}` lines to stderr.
func newJurassikConfig() zap.Config {
	return zap.Config{
		Level:       zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
		// zap's own errors
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:          "time",
			MessageKey:       "msg",
			LineEnding:       zapcore.DefaultLineEnding,
			EncodeTime:       zapcore.ISO8601TimeEncoder,
			EncodeDuration:   zapcore.StringDurationEncoder,
			ConsoleSeparator: "\t",
		},
	}
}

func parseLevel(lvl string) zap.AtomicLevel {
	if atom, err := zap.ParseAtomicLevel(lvl); err == nil && lvl != "" {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
