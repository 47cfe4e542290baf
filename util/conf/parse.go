package conf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/jurassik/jurassik/util/cliflags"
)

// DefaultConfig is a flat map of default values, keyed by dotted path.
type DefaultConfig map[string]any

type ParseOptions struct {
	// Cli is the cli.Context from urfave/cli
	Cli *cli.Context

	// CliMap is a map of cli flag names to config keys
	CliMap map[string]string

	// Defaults is a map of default values
	Defaults DefaultConfig

	// EnvPrefix is the prefix for env vars
	EnvPrefix string

	// FileName is the name of the configuration file to load.
	// Files ending in .json are parsed as JSON, all others as YAML.
	FileName string

	// Log is the logger to use
	Log *zap.Logger
}

// Load reads defaults, the config file, env vars and cli flags, in
// increasing order of precedence.
func Load(opt ParseOptions) (*koanf.Koanf, error) {
	var log *zap.Logger
	if opt.Log != nil {
		log = opt.Log
	} else {
		log = zap.NewNop()
	}

	k := koanf.New(".")

	if opt.Defaults != nil {
		if err := k.Load(confmap.Provider(opt.Defaults, "."), nil); err != nil {
			log.Error("error loading defaults", zap.Error(err))
			return nil, err
		}
	}

	if opt.FileName != "" {
		if err := k.Load(file.Provider(opt.FileName), parserFor(opt.FileName)); err != nil {
			log.Error("error parsing file",
				zap.Error(err),
				zap.String("file", opt.FileName),
			)
			return nil, fmt.Errorf("failed to load %s: %w", opt.FileName, err)
		}
	}

	transformPrefixedEnv := func(s string) string {
		return transformEnv(s, opt.EnvPrefix)
	}

	if err := k.Load(env.Provider(opt.EnvPrefix, ".", transformPrefixedEnv), nil); err != nil {
		log.Error("error parsing env vars", zap.Error(err))
		return nil, err
	}

	if opt.Cli != nil {
		transformFlag := func(s string) string {
			if opt.CliMap != nil {
				if name, ok := opt.CliMap[s]; ok {
					return name
				}
			}

			// replace - with _
			return strings.ReplaceAll(strings.ToLower(s), "-", "_")
		}

		if err := k.Load(cliflags.Provider(opt.Cli, ".", transformFlag), nil); err != nil {
			log.Error("error parsing cli flags", zap.Error(err))
			return nil, err
		}
	}

	return k, nil
}

// Parse loads the configuration and unmarshals it into C
// using the `conf` struct tag.
func Parse[C any](opt ParseOptions) (C, error) {
	var config C

	k, err := Load(opt)
	if err != nil {
		return config, err
	}

	if err := Unmarshal(k, &config); err != nil {
		if opt.Log != nil {
			opt.Log.Error("error unmarshalling config", zap.Error(err))
		}
		return config, err
	}

	return config, nil
}

func Unmarshal(k *koanf.Koanf, out any) error {
	return k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "conf"})
}

func parserFor(fileName string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".json":
		return json.Parser()
	default:
		return yaml.Parser()
	}
}

func transformEnv(s, prefix string) string {
	// strip the prefix, if it is set
	s = strings.TrimPrefix(s, prefix)
	// allow specifying nested env vars w/ __
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
