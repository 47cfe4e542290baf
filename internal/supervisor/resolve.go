package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/dotenv"

	"github.com/jurassik/jurassik/internal/sink"
)

// plan is a spec with every path resolved.
type plan struct {
	cwd    string
	stdout sink.Destination
	stderr sink.Destination
	env    map[string]string
}

func (s *Supervisor) resolve(spec Spec) (plan, error) {
	cwd := spec.Cwd
	if cwd == "" {
		cwd = "."
	}
	if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(s.rt.BaseDir, cwd)
	}

	env, err := loadEnv(spec, cwd)
	if err != nil {
		return plan{}, err
	}

	return plan{
		cwd:    cwd,
		stdout: destination(spec.Stdout, cwd, sink.Standard),
		stderr: destination(spec.Stderr, cwd, sink.Error),
		env:    env,
	}, nil
}

func destination(target, cwd string, class sink.Class) sink.Destination {
	switch target {
	case "", sink.ConsoleTarget:
		return sink.ConsoleDestination(class)
	case "stdout":
		return sink.ConsoleDestination(sink.Standard)
	case "stderr":
		return sink.ConsoleDestination(sink.Error)
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(cwd, target)
	}

	return sink.FileDestination(target, class)
}

// loadEnv merges the env file of the spec with its env map.
// Entries of the env map win.
func loadEnv(spec Spec, cwd string) (map[string]string, error) {
	if spec.EnvFile == "" {
		return spec.Env, nil
	}

	path := spec.EnvFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	values, err := dotenv.Parser().Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}

	env := make(map[string]string, len(values)+len(spec.Env))
	for k, v := range values {
		env[k] = fmt.Sprint(v)
	}
	for k, v := range spec.Env {
		env[k] = v
	}

	return env, nil
}
