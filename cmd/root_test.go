package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jurassik.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := rootApp.Writer
	rootApp.Writer = &buf
	t.Cleanup(func() { rootApp.Writer = prev })

	return &buf
}

func TestRun_Validate_AllValid(t *testing.T) {
	path := writeConfig(t, "processes:\n  - name: a\n    command: \"true\"\n")
	out := captureOutput(t)

	code := run(context.Background(), []string{"jurassik", "-c", path, "-l", filepath.Join(t.TempDir(), "j.log"), "validate"})

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "1 valid, 0 invalid processes")
}

func TestRun_Validate_ReportsInvalid(t *testing.T) {
	path := writeConfig(t, "processes:\n  - name: a\n    command: \"true\"\n  - name: broken\n")
	out := captureOutput(t)

	code := run(context.Background(), []string{"jurassik", "-c", path, "-l", filepath.Join(t.TempDir(), "j.log"), "validate"})

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "invalid process #1 (broken)")
	assert.Contains(t, out.String(), "1 valid, 1 invalid processes")
}

func TestRun_MissingConfig(t *testing.T) {
	code := run(context.Background(), []string{
		"jurassik",
		"-c", filepath.Join(t.TempDir(), "missing.yaml"),
		"-l", filepath.Join(t.TempDir(), "j.log"),
		"validate",
	})

	assert.Equal(t, 1, code)
}

func TestRun_SupervisesUntilProcessesFinish(t *testing.T) {
	path := writeConfig(t, "processes:\n  - name: hello\n    command: sh\n    args: [\"-c\", \"echo hi\"]\n    stdout: hello.log\n")

	code := run(context.Background(), []string{"jurassik", "-c", path, "-l", filepath.Join(t.TempDir(), "j.log")})

	assert.Equal(t, 0, code)

	b, err := os.ReadFile(filepath.Join(filepath.Dir(path), "hello.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hi\n")
}
