// Package cliflags exposes the command line flags that were set as a
// koanf provider, so flags override the config file and env vars.
package cliflags

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
)

// CLIFlags holds the values of the set flags, keyed by config key.
type CLIFlags struct {
	mp map[string]any
}

// Provider collects the flags set on ctx and its parents. rename maps a
// flag name to its config key; a key containing delim is nested.
func Provider(ctx *cli.Context, delim string, rename func(string) string) *CLIFlags {
	known := map[string]cli.Flag{}
	for _, flag := range ctx.App.VisibleFlags() {
		known[flag.Names()[0]] = flag
	}
	if ctx.Command != nil {
		for _, flag := range ctx.Command.VisibleFlags() {
			known[flag.Names()[0]] = flag
		}
	}

	mp := make(map[string]any)

	// FlagNames only lists flags set on the command line or by env
	for _, name := range ctx.FlagNames() {
		flag, ok := known[name]
		if !ok {
			continue
		}

		value, err := flagValue(ctx, flag)
		if err != nil {
			continue
		}

		key := name
		if rename != nil {
			key = rename(name)
		}
		mp[key] = value
	}

	if delim != "" {
		mp = maps.Unflatten(mp, delim)
	}

	return &CLIFlags{mp: mp}
}

// ReadBytes is not supported, flags have no raw representation.
func (e *CLIFlags) ReadBytes() ([]byte, error) {
	return nil, errors.New("cli provider does not support this method")
}

// Read returns the collected flag values.
func (e *CLIFlags) Read() (map[string]any, error) {
	return e.mp, nil
}

func flagValue(ctx *cli.Context, flag cli.Flag) (any, error) {
	name := flag.Names()[0]

	switch f := flag.(type) {
	case *cli.StringFlag:
		return ctx.String(name), nil
	case *cli.PathFlag:
		return ctx.Path(name), nil
	case *cli.StringSliceFlag:
		return ctx.StringSlice(name), nil
	case *cli.BoolFlag:
		return ctx.Bool(name), nil
	case *cli.IntFlag:
		return ctx.Int(name), nil
	case *cli.Int64Flag:
		return ctx.Int64(name), nil
	case *cli.Float64Flag:
		return ctx.Float64(name), nil
	case *cli.DurationFlag:
		return ctx.Duration(name), nil
	default:
		return nil, fmt.Errorf("unsupported flag type %T", f)
	}
}
