package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okit-dev/okit/tool"
)

const tracerName = "github.com/okit-dev/okit/registry"

// Invocation records one completed tool dispatch.
type Invocation struct {
	Tool      string
	Args      []string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Observer receives a record of each completed tool dispatch. Observation is
// best effort: observers must not fail the dispatch.
type Observer interface {
	ToolInvoked(ctx context.Context, inv Invocation)
}

// NodeOptions configures a lazy node.
type NodeOptions struct {
	// Logger receives materialization diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
	// Observer, if set, is notified after every dispatch.
	Observer Observer
}

func (o NodeOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// lazyNode carries the deferred-construction state shared by LazyCommand and
// LazyGroup. The tool instance is constructed at most once; the real cobra
// tree is rebuilt per dispatch because cobra commands retain parsed flag
// values across Execute calls, and a second invoke must not observe the
// first one's flags. A failed construction leaves the node unmaterialized,
// so a later invoke in the same process retries.
type lazyNode struct {
	desc     tool.Descriptor
	logger   *slog.Logger
	observer Observer

	mu           sync.Mutex
	materialized bool
	cleaned      bool
	instance     tool.Tool
}

// Materialized reports whether the tool instance exists.
func (n *lazyNode) Materialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.materialized
}

// materialize constructs the tool instance on first call. The transition is
// guarded, so concurrent first access performs construction exactly once.
func (n *lazyNode) materialize(ctx context.Context) (tool.Tool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.materialized {
		return n.instance, nil
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "tool.materialize",
		trace.WithAttributes(attribute.String("okit.tool", n.desc.Name)))
	defer span.End()

	instance, err := n.desc.New(n.desc.Name, n.desc.Description)
	if err != nil {
		err = fmt.Errorf("registry: constructing tool %q: %w", n.desc.Name, err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Error("tool construction failed", "tool", n.desc.Name, "error", err)
		return nil, err
	}

	if !instance.ValidateConfig() {
		n.logger.Warn("tool configuration incomplete", "tool", n.desc.Name)
	}

	n.instance = instance
	n.materialized = true
	return instance, nil
}

// buildCommand assembles a fresh real command tree for the cached instance.
// AddCommands must tolerate repeated calls on distinct commands, which is
// what makes the per-dispatch rebuild safe.
func (n *lazyNode) buildCommand(instance tool.Tool) *cobra.Command {
	real := &cobra.Command{
		Use:           n.desc.Name,
		Short:         n.desc.ShortHelp(),
		Long:          n.desc.Help(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	instance.AddCommands(real)
	return real
}

// dispatch materializes if needed and executes a freshly built command tree
// with the caller's remaining arguments. Group-level pre-dispatch hooks run
// as the real group's PersistentPreRunE under normal cobra dispatch.
func (n *lazyNode) dispatch(cmd *cobra.Command, args []string) error {
	started := time.Now()
	instance, err := n.materialize(cmd.Context())
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer(tracerName).Start(cmd.Context(), "tool.dispatch",
		trace.WithAttributes(
			attribute.String("okit.tool", n.desc.Name),
			attribute.StringSlice("okit.args", args),
		))
	defer span.End()

	real := n.buildCommand(instance)
	real.SetArgs(args)
	real.SetIn(cmd.InOrStdin())
	real.SetOut(cmd.OutOrStdout())
	real.SetErr(cmd.ErrOrStderr())

	err = real.ExecuteContext(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	if n.observer != nil {
		n.observer.ToolInvoked(ctx, Invocation{
			Tool:      n.desc.Name,
			Args:      args,
			StartedAt: started,
			Duration:  time.Since(started),
			Err:       err,
		})
	}
	return err
}

// Cleanup releases the tool instance's resources if one was materialized.
// It runs the tool's Cleanup at most once, after all dispatches in the
// process are done. Best effort: failures are logged, never returned.
func (n *lazyNode) Cleanup() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.materialized || n.cleaned {
		return
	}
	n.cleaned = true
	if err := n.instance.Cleanup(); err != nil {
		n.logger.Warn("tool cleanup failed", "tool", n.desc.Name, "error", err)
	}
}

// helpRequested reports whether args ask for help before the first
// positional argument or the flag terminator. Help at that position belongs
// to the placeholder and is answered from the declared descriptor text
// without materializing. Help after a positional argument belongs to the
// named subcommand and must dispatch, so the user sees the real
// subcommand's help and flags.
func helpRequested(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "-h" || a == "--help" {
			return true
		}
		if !strings.HasPrefix(a, "-") {
			return false
		}
	}
	return false
}

// LazyCommand presents a single-command tool to the dispatch layer while
// deferring its construction until first invocation.
type LazyCommand struct {
	lazyNode
}

// NewLazyCommand wraps a KindCommand descriptor.
func NewLazyCommand(desc tool.Descriptor, opts NodeOptions) *LazyCommand {
	return &LazyCommand{lazyNode{
		desc:     desc,
		logger:   opts.logger(),
		observer: opts.Observer,
	}}
}

// Command returns the placeholder cobra command. It is built from the
// descriptor alone: flag parsing is disabled so tool flags pass through
// untouched, and leading help requests are answered without materializing.
func (l *LazyCommand) Command() *cobra.Command {
	return &cobra.Command{
		Use:                l.desc.Name,
		Short:              l.desc.ShortHelp(),
		Long:               l.desc.Help(),
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpRequested(args) {
				return cmd.Help()
			}
			return l.dispatch(cmd, args)
		},
	}
}

// LazyGroup presents a multi-command tool to the dispatch layer while
// deferring construction and subcommand enumeration until first use.
// Loading the subcommand list and materialization coincide: the tool builds
// its real command tree in one step.
type LazyGroup struct {
	lazyNode
	commandsLoaded bool
}

// NewLazyGroup wraps a KindGroup descriptor.
func NewLazyGroup(desc tool.Descriptor, opts NodeOptions) *LazyGroup {
	return &LazyGroup{lazyNode: lazyNode{
		desc:     desc,
		logger:   opts.logger(),
		observer: opts.Observer,
	}}
}

// Command returns the placeholder group command. Invoking it with no
// arguments or a leading help flag prints declared help without
// materializing; anything else, including "<sub> --help", materializes once
// and dispatches through the real group so cobra renders the subcommand's
// own help.
func (g *LazyGroup) Command() *cobra.Command {
	return &cobra.Command{
		Use:                g.desc.Name,
		Short:              g.desc.ShortHelp(),
		Long:               g.desc.Help(),
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || helpRequested(args) {
				return cmd.Help()
			}
			return g.dispatch(cmd, args)
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			names, err := g.Subcommands(cmd.Context())
			if err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
	}
}

// Subcommands ensures the group's commands are loaded and returns their
// names sorted. The underlying tool is constructed at most once no matter
// how often this is called; it is safe for help and completion and never
// invokes a subcommand.
func (g *LazyGroup) Subcommands(ctx context.Context) ([]string, error) {
	instance, err := g.materialize(ctx)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.commandsLoaded = true
	g.mu.Unlock()

	subs := g.buildCommand(instance).Commands()
	names := make([]string, 0, len(subs))
	for _, sub := range subs {
		names = append(names, sub.Name())
	}
	// cobra keeps Commands() sorted unless sorting is disabled; this does
	// not rely on that.
	sort.Strings(names)
	return names, nil
}

// Lookup ensures commands are loaded and returns the named subcommand.
// An unknown name returns ok=false, never an error.
func (g *LazyGroup) Lookup(ctx context.Context, name string) (*cobra.Command, bool) {
	instance, err := g.materialize(ctx)
	if err != nil {
		return nil, false
	}
	g.mu.Lock()
	g.commandsLoaded = true
	g.mu.Unlock()

	for _, sub := range g.buildCommand(instance).Commands() {
		if sub.Name() == name {
			return sub, true
		}
	}
	return nil, false
}

// CommandsLoaded reports whether the subcommand list has been populated.
func (g *LazyGroup) CommandsLoaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commandsLoaded
}
