package config

import (
	"github.com/jurassik/jurassik/internal/server"
	"github.com/jurassik/jurassik/internal/supervisor"
	"github.com/jurassik/jurassik/util/conf"
	"github.com/jurassik/jurassik/util/logging"
)

const (
	// DefaultFileName is loaded when no config file is given
	DefaultFileName = "jurassik.yaml"

	// EnvPrefix is the prefix of env vars that override config values
	EnvPrefix = "JURASSIK_"
)

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Log is the file the diagnostic log is written to.
	// Empty means stderr.
	Log string `conf:"log"`

	// Verbose enables debug logging
	Verbose bool `conf:"verbose"`

	// Tee mirrors file output to the console
	Tee bool `conf:"tee"`

	// Version is the version of the config file format
	Version string `conf:"version"`

	// File is the absolute path of the loaded config file
	File string `conf:"-"`

	// Processes are the valid process definitions, in file order
	Processes []supervisor.Spec `conf:"-"`

	// Invalid are the process definitions that were skipped
	Invalid []InvalidProcess `conf:"-"`

	// Status is the configuration of the status endpoint
	Status server.HttpConfig `conf:"status"`
}

var DefaultConfig = defaultConfig()

func defaultConfig() conf.DefaultConfig {
	defaults := conf.DefaultConfig{
		"log_level":  "info",
		"log_format": logging.FormatJurassik,
		"verbose":    false,
		"tee":        false,
	}

	for key, val := range conf.MergeDefaults("status", server.DefaultConfig) {
		defaults[key] = val
	}

	return defaults
}
