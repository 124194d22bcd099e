package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCommand runs the root command with args and captures its output.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color"}, args...))

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeConfig writes a config file to a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restdecl.yml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"+content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "restdecl" {
		t.Errorf("expected Use to be 'restdecl', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	for _, expected := range []string{"version", "serve", "call", "inspect"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}

	for _, flag := range []string{"config", "no-color"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag to be registered", flag)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2025-01-01"
	GoVersion = "go1.23"

	out, _, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}

	for _, want := range []string{"restdecl version: 1.0.0-test", "Git commit:       abc123", "go1.23"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	path := writeConfig(t, "cache:\n  backend: memcached\n")

	_, stderr, err := executeCommand(t, "--config", path, "call", "list")
	if err == nil {
		t.Fatal("expected an error for an invalid config")
	}

	var reported reportedError
	if !errors.As(err, &reported) {
		t.Errorf("expected a reported error, got %T", err)
	}
	if !strings.Contains(stderr, "CONFIGURATION ERROR") {
		t.Errorf("expected a configuration error message, got:\n%s", stderr)
	}
}
