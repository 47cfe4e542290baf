package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ConsoleTarget is the target of destinations that write to
// the supervisor's own stdout or stderr stream.
const ConsoleTarget = "console"

// Class is the severity class of a destination.
type Class int

const (
	// Standard is the class for standard output.
	Standard Class = iota
	// Error is the class for standard error.
	Error
)

func (c Class) String() string {
	if c == Error {
		return "error"
	}

	return "info"
}

// Destination identifies a log sink. Two destinations with the
// same target and class always resolve to the same sink.
type Destination struct {
	// Target is either ConsoleTarget or a cleaned file path.
	Target string

	// Class is the severity class of the destination.
	Class Class
}

// ConsoleDestination returns the console destination for the given class.
func ConsoleDestination(class Class) Destination {
	return Destination{Target: ConsoleTarget, Class: class}
}

// FileDestination returns a file destination for the given path and class.
func FileDestination(path string, class Class) Destination {
	return Destination{Target: filepath.Clean(path), Class: class}
}

// Key returns the identity of the destination.
func (d Destination) Key() string {
	return fmt.Sprintf("%s-%s", d.Target, d.Class)
}

// IsConsole reports whether the destination writes to the console.
func (d Destination) IsConsole() bool {
	return d.Target == ConsoleTarget
}

func (d Destination) String() string {
	return d.Key()
}

// EnsureDir creates the directory for path. If the last path segment
// contains a dot it is treated as a file name and stripped, otherwise
// the whole path is taken as the directory.
func EnsureDir(path string) error {
	dir := dirOf(path)
	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}

		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

func dirOf(path string) string {
	// a trailing separator always names a directory
	if path == "" || os.IsPathSeparator(path[len(path)-1]) {
		return path
	}

	if !strings.Contains(filepath.Base(path), ".") {
		return path
	}

	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}

	return dir
}
