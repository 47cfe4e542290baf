package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jurassik/jurassik/internal/supervisor"
	"github.com/jurassik/jurassik/util/conf"
)

var ErrNoProcesses = errors.New("'processes' field is missing or not an array")

// cliMap maps flag names that do not follow the key naming.
var cliMap = map[string]string{
	"config":      "config_file",
	"status":      "status.enabled",
	"status-host": "status.host",
	"status-port": "status.port",
	"status-h2c":  "status.h2c",
}

type LoadOptions struct {
	// Cli provides flag overrides. Optional.
	Cli *cli.Context

	// FileName is the config file. Defaults to DefaultFileName.
	FileName string

	Log *zap.Logger
}

// Load reads the configuration and validates every process entry.
// Invalid entries are logged, reported in Config.Invalid and skipped.
func Load(opts LoadOptions) (Config, error) {
	var cfg Config

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	fileName := opts.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}

	file, err := filepath.Abs(fileName)
	if err != nil {
		return cfg, err
	}

	log.Debug("loading configuration", zap.String("file", file))

	k, err := conf.Load(conf.ParseOptions{
		Cli:       opts.Cli,
		CliMap:    cliMap,
		Defaults:  DefaultConfig,
		EnvPrefix: EnvPrefix,
		FileName:  file,
		Log:       log,
	})
	if err != nil {
		return cfg, err
	}

	if err := conf.Unmarshal(k, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.File = file

	raw, ok := k.Get("processes").([]any)
	if !ok {
		return cfg, fmt.Errorf("invalid %s: %w", filepath.Base(file), ErrNoProcesses)
	}

	for i, entry := range raw {
		spec, invalid := parseProcess(i, entry)
		if invalid != nil {
			log.Error("skipping invalid process definition", zap.Error(invalid))
			cfg.Invalid = append(cfg.Invalid, *invalid)
			continue
		}

		cfg.Processes = append(cfg.Processes, spec)
	}

	return cfg, nil
}

func parseProcess(index int, entry any) (supervisor.Spec, *InvalidProcess) {
	var spec supervisor.Spec

	invalid := &InvalidProcess{Index: index}

	values, ok := entry.(map[string]any)
	if !ok {
		invalid.Errors = []string{"process definition must be an object"}
		return spec, invalid
	}

	if name, ok := values["name"].(string); ok {
		invalid.Name = name
	}

	errs, err := validateProcess(values)
	if err != nil {
		invalid.Errors = []string{err.Error()}
		return spec, invalid
	}
	if len(errs) > 0 {
		invalid.Errors = errs
		return spec, invalid
	}

	// decode through koanf, so the entry gets the same weak typing as the rest
	k := koanf.New("::")
	if err := k.Load(confmap.Provider(values, ""), nil); err != nil {
		invalid.Errors = []string{err.Error()}
		return spec, invalid
	}

	if err := conf.Unmarshal(k, &spec); err != nil {
		invalid.Errors = []string{err.Error()}
		return spec, invalid
	}

	if err := spec.Validate(); err != nil {
		invalid.Errors = []string{err.Error()}
		return spec, invalid
	}

	return spec, nil
}
