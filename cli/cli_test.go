package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/okit-dev/okit/registry"
	"github.com/okit-dev/okit/tool"
)

// executeCommand runs a cobra command with the given args and captures
// stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// greeterTool is a one-subcommand group used to drive dispatch through the
// full composition root.
type greeterTool struct {
	*tool.Base
}

func (g *greeterTool) AddCommands(cmd *cobra.Command) {
	cmd.AddCommand(&cobra.Command{
		Use:   "hello",
		Short: "Say hello",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Hello from greeter!")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:  "fail",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("greeter failed")
		},
	})
}

func testOptions(t *testing.T) Options {
	t.Helper()
	t.Setenv(tool.EnvHome, t.TempDir())

	reg := registry.New()
	reg.MustRegister(tool.Descriptor{
		Name:        "greeter",
		Description: "Greets people",
		Kind:        tool.KindGroup,
		New: func(name, description string) (tool.Tool, error) {
			return &greeterTool{Base: tool.NewBase(name, description)}, nil
		},
	})
	return Options{
		Version:     "1.2.3",
		Registry:    reg,
		ToolPaths:   []string{},
		HistoryPath: filepath.Join(t.TempDir(), "okit.db"),
	}
}

func TestRoot_Version(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	stdout, _, err := executeCommand(root, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if stdout != "okit version 1.2.3\n" {
		t.Errorf("version output = %q", stdout)
	}
}

func TestRoot_Help_ListsTools(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	stdout, _, err := executeCommand(root, "--help")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	if !strings.Contains(stdout, "greeter") {
		t.Error("help should list the registered tool")
	}
	if !strings.Contains(stdout, "history") {
		t.Error("help should list the history command")
	}
}

func TestRoot_UnknownTool(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	_, _, err := executeCommand(root, "no-such-tool")
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !strings.Contains(err.Error(), "no-such-tool") {
		t.Errorf("error should name the unknown command, got: %v", err)
	}
}

func TestRoot_DispatchesTool(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	stdout, _, err := executeCommand(root, "greeter", "hello")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(stdout, "Hello from greeter!") {
		t.Errorf("tool output missing, got: %q", stdout)
	}
}

func TestRoot_CleansUpToolAfterDispatch(t *testing.T) {
	var cleanups int
	opts := testOptions(t)
	opts.Registry.MustRegister(tool.Descriptor{
		Name:        "resourceful",
		Description: "Holds a resource",
		Kind:        tool.KindGroup,
		New: func(name, description string) (tool.Tool, error) {
			return &resourcefulTool{
				greeterTool: greeterTool{Base: tool.NewBase(name, description)},
				cleanups:    &cleanups,
			}, nil
		},
	})

	root := NewRootCmd(opts)
	if _, _, err := executeCommand(root, "resourceful", "hello"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if cleanups != 1 {
		t.Errorf("cleanups = %d, want exactly one after the run", cleanups)
	}
}

// resourcefulTool counts Cleanup calls.
type resourcefulTool struct {
	greeterTool
	cleanups *int
}

func (r *resourcefulTool) Cleanup() error {
	*r.cleanups++
	return nil
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	_, _, err := executeCommand(root, "--log-level", "bogus", "greeter", "hello")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
	if exitErr.Code != ExitDispatch {
		t.Errorf("exit code = %d, want %d", exitErr.Code, ExitDispatch)
	}
}

func TestRoot_TraceEmitsSpans(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	_, stderr, err := executeCommand(root, "--trace", "greeter", "hello")
	if err != nil {
		t.Fatalf("dispatch with --trace: %v", err)
	}
	if !strings.Contains(stderr, "tool.dispatch") {
		t.Errorf("expected dispatch span on stderr, got: %q", stderr)
	}
}

func TestHistory_EmptyList(t *testing.T) {
	root := NewRootCmd(testOptions(t))
	stdout, _, err := executeCommand(root, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(stdout, "No invocations recorded.") {
		t.Errorf("expected empty-history message, got: %q", stdout)
	}
}

func TestHistory_RecordsDispatches(t *testing.T) {
	opts := testOptions(t)

	root := NewRootCmd(opts)
	if _, _, err := executeCommand(root, "greeter", "hello"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	_, _, _ = executeCommand(root, "greeter", "fail")

	stdout, _, err := executeCommand(root, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(stdout, "greeter") {
		t.Errorf("history should record the tool name, got: %q", stdout)
	}
	if !strings.Contains(stdout, "ok") || !strings.Contains(stdout, "failed") {
		t.Errorf("history should record both statuses, got: %q", stdout)
	}

	stdout, _, err = executeCommand(root, "history", "clear")
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	if !strings.Contains(stdout, "History cleared.") {
		t.Errorf("clear output = %q", stdout)
	}

	stdout, _, err = executeCommand(root, "history", "list")
	if err != nil {
		t.Fatalf("history list after clear: %v", err)
	}
	if !strings.Contains(stdout, "No invocations recorded.") {
		t.Errorf("expected empty history after clear, got: %q", stdout)
	}
}

func TestRoot_ScansManifestDirectories(t *testing.T) {
	opts := testOptions(t)
	dir := t.TempDir()
	manifest := "name: external\ndescription: External tool\nexec:\n  command: echo\n"
	if err := os.WriteFile(filepath.Join(dir, "external.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	opts.ToolPaths = []string{dir}

	root := NewRootCmd(opts)
	stdout, _, err := executeCommand(root, "--help")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	if !strings.Contains(stdout, "external") {
		t.Errorf("scanned manifest tool should be listed, got: %q", stdout)
	}
}
