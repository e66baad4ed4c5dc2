package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conduit-lang/metagraph/internal/demo/sales"
	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

func testApp() *App {
	return &App{
		Catalog:          sales.Catalog(),
		SystemInterfaces: sales.SystemInterfaces,
		DefaultClasses:   sales.DefaultClasses,
	}
}

// runCommand executes the root command with colors disabled and returns
// everything written to stdout and stderr
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(testApp())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a metagraph.yaml into a temp dir and returns its path
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metagraph.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"+content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand(testApp())

	if cmd.Use != "metagraph" {
		t.Errorf("expected Use to be 'metagraph', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if cmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	expectedCommands := []string{"version", "init", "inspect", "check", "export", "dev"}
	for _, expected := range expectedCommands {
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

	for _, flag := range []string{"config", "no-color", "log-level"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag --%s", flag)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() {
		Version = "dev"
		GitCommit = "unknown"
	}()

	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"Metagraph version: ", "1.0.0-test", "Git commit: ", "abc123", "Go version: "} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "load error",
			err: &metamodel.LoadError{
				Phase: metamodel.PhaseFullyResolved,
				Class: "sales_Order",
				Err:   metamodel.ErrUnknownRangeClass,
			},
			want: []string{"METADATA LOAD FAILED", "Failed phase: fully_resolved", "add the target class to metadata.classes"},
		},
		{
			name: "config error",
			err:  &configError{err: errors.New("stores[0]: dsn is required")},
			want: []string{"CONFIGURATION ERROR", "stores[0]: dsn is required", "metagraph init"},
		},
		{
			name: "class not found",
			err:  &classNotFoundError{name: "sales_Ordr", suggestions: []string{"sales_Order"}},
			want: []string{"CLASS NOT FOUND", "Class 'sales_Ordr' is not loaded.", "Did you mean: sales_Order?"},
		},
		{
			name: "other error",
			err:  errors.New("boom"),
			want: []string{"Error: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderError(&buf, tt.err, true)
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected %q in:\n%s", want, buf.String())
				}
			}
		})
	}
}
