package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/okit-dev/okit/tool"
)

// stubGroupTool records which subcommands ran so tests can tell dispatch
// apart from mere enumeration.
type stubGroupTool struct {
	*tool.Base
	invoked *[]string
}

func (s *stubGroupTool) AddCommands(cmd *cobra.Command) {
	hello := &cobra.Command{
		Use:   "hello",
		Short: "Say hello",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			*s.invoked = append(*s.invoked, "hello "+name)
			fmt.Fprintf(cmd.OutOrStdout(), "Hello, %s!\n", name)
			return nil
		},
	}
	hello.Flags().String("name", "World", "Who to greet")

	boom := &cobra.Command{
		Use:  "boom",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*s.invoked = append(*s.invoked, "boom")
			return errors.New("boom failed")
		},
	}

	cmd.AddCommand(hello)
	cmd.AddCommand(boom)
}

// stubCommandTool populates a single command that echoes its arguments.
type stubCommandTool struct {
	*tool.Base
	invoked *[]string
}

func (s *stubCommandTool) AddCommands(cmd *cobra.Command) {
	cmd.DisableFlagParsing = true
	cmd.Args = cobra.ArbitraryArgs
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		*s.invoked = append(*s.invoked, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(args, " "))
		return nil
	}
}

// countingDescriptor wraps a descriptor so tests can observe how many times
// construction ran.
func groupDescriptor(name string, constructed *int, invoked *[]string) tool.Descriptor {
	return tool.Descriptor{
		Name:        name,
		Description: name + " group tool",
		Kind:        tool.KindGroup,
		New: func(name, description string) (tool.Tool, error) {
			*constructed++
			return &stubGroupTool{Base: tool.NewBase(name, description), invoked: invoked}, nil
		},
	}
}

func commandDescriptor(name string, constructed *int, invoked *[]string) tool.Descriptor {
	return tool.Descriptor{
		Name:        name,
		Description: name + " command tool",
		Kind:        tool.KindCommand,
		New: func(name, description string) (tool.Tool, error) {
			*constructed++
			return &stubCommandTool{Base: tool.NewBase(name, description), invoked: invoked}, nil
		},
	}
}

// cleanupGroupTool counts how many times Cleanup runs.
type cleanupGroupTool struct {
	stubGroupTool
	cleanups *int
}

func (c *cleanupGroupTool) Cleanup() error {
	*c.cleanups++
	return nil
}

func cleanupGroupDescriptor(name string, constructed, cleanups *int, invoked *[]string) tool.Descriptor {
	return tool.Descriptor{
		Name:        name,
		Description: name + " group tool",
		Kind:        tool.KindGroup,
		New: func(name, description string) (tool.Tool, error) {
			*constructed++
			return &cleanupGroupTool{
				stubGroupTool: stubGroupTool{Base: tool.NewBase(name, description), invoked: invoked},
				cleanups:      cleanups,
			}, nil
		},
	}
}

func quietOptions() NodeOptions {
	return NodeOptions{Logger: slog.New(slog.DiscardHandler)}
}

// newTestRoot builds an isolated root for placeholder commands.
func newTestRoot(children ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:          "okit",
		SilenceUsage: true,
	}
	root.AddCommand(children...)
	return root
}

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

func TestLazyCommand_HelpWithoutMaterializing(t *testing.T) {
	var constructed int
	var invoked []string
	lc := NewLazyCommand(commandDescriptor("mytool", &constructed, &invoked), quietOptions())

	root := newTestRoot(lc.Command())
	stdout, _, err := executeCommand(root, "mytool", "--help")
	if err != nil {
		t.Fatalf("help should not error, got: %v", err)
	}
	if !strings.Contains(stdout, "mytool command tool") {
		t.Errorf("help should carry the declared description, got: %q", stdout)
	}
	if constructed != 0 {
		t.Errorf("help must not construct the tool, constructed %d times", constructed)
	}
	if lc.Materialized() {
		t.Error("help must leave the node unmaterialized")
	}
}

func TestLazyCommand_DispatchMaterializesOnce(t *testing.T) {
	var constructed int
	var invoked []string
	lc := NewLazyCommand(commandDescriptor("mytool", &constructed, &invoked), quietOptions())
	placeholder := lc.Command()

	root := newTestRoot(placeholder)
	stdout, _, err := executeCommand(root, "mytool", "a", "b")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(stdout, "a b") {
		t.Errorf("arguments should pass through, got: %q", stdout)
	}

	if _, _, err := executeCommand(root, "mytool", "c"); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if constructed != 1 {
		t.Errorf("tool should be constructed exactly once, got %d", constructed)
	}
	if want := []string{"a b", "c"}; !reflect.DeepEqual(invoked, want) {
		t.Errorf("invocations = %v, want %v", invoked, want)
	}
	if !lc.Materialized() {
		t.Error("dispatch should leave the node materialized")
	}
}

func TestLazyCommand_FlagsPassThrough(t *testing.T) {
	var constructed int
	var invoked []string
	lc := NewLazyCommand(commandDescriptor("mytool", &constructed, &invoked), quietOptions())

	root := newTestRoot(lc.Command())
	if _, _, err := executeCommand(root, "mytool", "--not-a-root-flag", "value"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if want := []string{"--not-a-root-flag value"}; !reflect.DeepEqual(invoked, want) {
		t.Errorf("invocations = %v, want %v", invoked, want)
	}
}

func TestLazyCommand_ConstructorFailureRetries(t *testing.T) {
	fail := true
	var constructed int
	desc := tool.Descriptor{
		Name:        "flaky",
		Description: "sometimes constructs",
		Kind:        tool.KindCommand,
		New: func(name, description string) (tool.Tool, error) {
			constructed++
			if fail {
				return nil, errors.New("construction refused")
			}
			var invoked []string
			return &stubCommandTool{Base: tool.NewBase(name, description), invoked: &invoked}, nil
		},
	}
	lc := NewLazyCommand(desc, quietOptions())
	root := newTestRoot(lc.Command())

	if _, _, err := executeCommand(root, "flaky", "x"); err == nil {
		t.Fatal("expected construction failure to surface")
	}
	if lc.Materialized() {
		t.Error("failed materialization must leave the node unmaterialized")
	}

	fail = false
	if _, _, err := executeCommand(root, "flaky", "x"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if constructed != 2 {
		t.Errorf("expected one failed and one successful construction, got %d", constructed)
	}
}

func TestLazyCommand_HelpWorksWhenConstructionAlwaysFails(t *testing.T) {
	desc := tool.Descriptor{
		Name:        "broken",
		Description: "never constructs",
		Kind:        tool.KindCommand,
		New: func(name, description string) (tool.Tool, error) {
			return nil, errors.New("construction always fails")
		},
	}
	lc := NewLazyCommand(desc, quietOptions())
	root := newTestRoot(lc.Command())

	stdout, _, err := executeCommand(root, "broken", "--help")
	if err != nil {
		t.Fatalf("help must not depend on construction, got: %v", err)
	}
	if !strings.Contains(stdout, "never constructs") {
		t.Errorf("help should show the declared text, got: %q", stdout)
	}
}

func TestLazyGroup_NoArgsPrintsHelpWithoutMaterializing(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	root := newTestRoot(lg.Command())
	stdout, _, err := executeCommand(root, "grp")
	if err != nil {
		t.Fatalf("bare group: %v", err)
	}
	if !strings.Contains(stdout, "grp group tool") {
		t.Errorf("expected declared help text, got: %q", stdout)
	}
	if constructed != 0 {
		t.Errorf("bare group must not construct the tool, constructed %d times", constructed)
	}
}

func TestLazyGroup_SubcommandDispatch(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	root := newTestRoot(lg.Command())
	stdout, _, err := executeCommand(root, "grp", "hello", "--name", "okit")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(stdout, "Hello, okit!") {
		t.Errorf("subcommand output missing, got: %q", stdout)
	}
	if want := []string{"hello okit"}; !reflect.DeepEqual(invoked, want) {
		t.Errorf("invocations = %v, want %v", invoked, want)
	}

	// A second subcommand reuses the materialized tool.
	if _, _, err := executeCommand(root, "grp", "hello", "--name", "again"); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if constructed != 1 {
		t.Errorf("constructed = %d, want 1", constructed)
	}
	if len(invoked) != 2 {
		t.Errorf("invocations = %v, want 2 entries", invoked)
	}
}

func TestLazyGroup_FlagValuesDoNotPersistAcrossDispatches(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	root := newTestRoot(lg.Command())
	stdout, _, err := executeCommand(root, "grp", "hello", "--name", "okit")
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if !strings.Contains(stdout, "Hello, okit!") {
		t.Fatalf("first dispatch output = %q", stdout)
	}

	// Omitting the flag must fall back to its default, not reuse the
	// previous dispatch's value.
	stdout, _, err = executeCommand(root, "grp", "hello")
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !strings.Contains(stdout, "Hello, World!") {
		t.Errorf("second dispatch should see the flag default, got: %q", stdout)
	}
	if constructed != 1 {
		t.Errorf("constructed = %d, want 1", constructed)
	}
}

func TestLazyGroup_SubcommandHelpShowsSubcommandFlags(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	root := newTestRoot(lg.Command())
	stdout, _, err := executeCommand(root, "grp", "hello", "--help")
	if err != nil {
		t.Fatalf("subcommand help: %v", err)
	}
	if !strings.Contains(stdout, "Say hello") {
		t.Errorf("expected the subcommand's own help, got: %q", stdout)
	}
	if !strings.Contains(stdout, "--name") {
		t.Errorf("subcommand help should list its flags, got: %q", stdout)
	}
	if len(invoked) != 0 {
		t.Errorf("help must not run the subcommand, got %v", invoked)
	}
	if constructed != 1 {
		t.Errorf("subcommand help requires materialization, constructed = %d", constructed)
	}
}

func TestLazyGroup_SubcommandErrorSurfaces(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	root := newTestRoot(lg.Command())
	_, _, err := executeCommand(root, "grp", "boom")
	if err == nil || !strings.Contains(err.Error(), "boom failed") {
		t.Fatalf("expected subcommand error to pass through, got: %v", err)
	}
}

func TestLazyGroup_SubcommandsEnumerateWithoutInvoking(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	if lg.CommandsLoaded() {
		t.Fatal("commands should not be loaded before first use")
	}

	names, err := lg.Subcommands(context.Background())
	if err != nil {
		t.Fatalf("subcommands: %v", err)
	}
	if want := []string{"boom", "hello"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Subcommands() = %v, want %v", names, want)
	}
	if len(invoked) != 0 {
		t.Errorf("enumeration must not invoke subcommands, got %v", invoked)
	}
	if !lg.CommandsLoaded() {
		t.Error("CommandsLoaded should report true after enumeration")
	}

	// Repeated enumeration reuses the single construction.
	if _, err := lg.Subcommands(context.Background()); err != nil {
		t.Fatalf("second enumeration: %v", err)
	}
	if constructed != 1 {
		t.Errorf("constructed = %d, want 1", constructed)
	}
}

func TestLazyGroup_Lookup(t *testing.T) {
	var constructed int
	var invoked []string
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), quietOptions())

	cmd, ok := lg.Lookup(context.Background(), "hello")
	if !ok {
		t.Fatal("expected hello to resolve")
	}
	if cmd.Short != "Say hello" {
		t.Errorf("unexpected subcommand: %q", cmd.Short)
	}
	if _, ok := lg.Lookup(context.Background(), "nope"); ok {
		t.Error("unknown subcommand should report ok=false, not an error")
	}
	if len(invoked) != 0 {
		t.Errorf("lookup must not invoke subcommands, got %v", invoked)
	}
}

func TestLazyGroup_ConcurrentFirstUseConstructsOnce(t *testing.T) {
	var mu sync.Mutex
	constructed := 0
	desc := tool.Descriptor{
		Name:        "grp",
		Description: "concurrent group",
		Kind:        tool.KindGroup,
		New: func(name, description string) (tool.Tool, error) {
			mu.Lock()
			constructed++
			mu.Unlock()
			var invoked []string
			return &stubGroupTool{Base: tool.NewBase(name, description), invoked: &invoked}, nil
		},
	}
	lg := NewLazyGroup(desc, quietOptions())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lg.Subcommands(context.Background()); err != nil {
				t.Errorf("subcommands: %v", err)
			}
		}()
	}
	wg.Wait()

	if constructed != 1 {
		t.Errorf("constructed = %d, want 1", constructed)
	}
}

func TestNodeCleanup_RunsOnceAfterDispatches(t *testing.T) {
	var constructed, cleanups int
	var invoked []string
	lg := NewLazyGroup(cleanupGroupDescriptor("grp", &constructed, &cleanups, &invoked), quietOptions())

	root := newTestRoot(lg.Command())
	if _, _, err := executeCommand(root, "grp", "hello"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if _, _, err := executeCommand(root, "grp", "hello"); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if cleanups != 0 {
		t.Fatalf("cleanup must not run between dispatches, ran %d times", cleanups)
	}

	lg.Cleanup()
	if cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", cleanups)
	}
	lg.Cleanup()
	if cleanups != 1 {
		t.Errorf("repeated Cleanup must be a no-op, cleanups = %d", cleanups)
	}
}

func TestNodeCleanup_SkipsUnmaterialized(t *testing.T) {
	var constructed, cleanups int
	var invoked []string
	lg := NewLazyGroup(cleanupGroupDescriptor("grp", &constructed, &cleanups, &invoked), quietOptions())

	lg.Cleanup()
	if constructed != 0 || cleanups != 0 {
		t.Errorf("cleanup of an unused node must not construct or tear down, constructed=%d cleanups=%d",
			constructed, cleanups)
	}
}

type recordingObserver struct {
	invocations []Invocation
}

func (o *recordingObserver) ToolInvoked(ctx context.Context, inv Invocation) {
	o.invocations = append(o.invocations, inv)
}

func TestDispatch_NotifiesObserver(t *testing.T) {
	var constructed int
	var invoked []string
	obs := &recordingObserver{}
	opts := quietOptions()
	opts.Observer = obs
	lg := NewLazyGroup(groupDescriptor("grp", &constructed, &invoked), opts)

	root := newTestRoot(lg.Command())
	if _, _, err := executeCommand(root, "grp", "hello"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	_, _, _ = executeCommand(root, "grp", "boom")

	if len(obs.invocations) != 2 {
		t.Fatalf("expected 2 observed invocations, got %d", len(obs.invocations))
	}
	if obs.invocations[0].Tool != "grp" || obs.invocations[0].Err != nil {
		t.Errorf("first invocation = %+v, want grp/ok", obs.invocations[0])
	}
	if obs.invocations[1].Err == nil {
		t.Error("failed dispatch should carry its error to the observer")
	}
	if want := []string{"hello"}; !reflect.DeepEqual(obs.invocations[0].Args, want) {
		t.Errorf("observed args = %v, want %v", obs.invocations[0].Args, want)
	}
}

func TestHelpRequested(t *testing.T) {
	cases := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{"-h"}, true},
		{[]string{"--help"}, true},
		{[]string{"--verbose", "--help"}, true},
		{[]string{"sub", "--help"}, false},
		{[]string{"sub", "--", "--help"}, false},
		{[]string{"--", "--help"}, false},
		{[]string{"--helpful"}, false},
	}
	for _, tc := range cases {
		if got := helpRequested(tc.args); got != tc.want {
			t.Errorf("helpRequested(%v) = %v, want %v", tc.args, got, tc.want)
		}
	}
}
