// Package cli builds the okit command tree: the root command with its
// logging and tracing flags, the lazily registered tool palette, and the
// builtin history commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okit-dev/okit/registry"
	"github.com/okit-dev/okit/telemetry"
)

// Options configures the composition root. Zero values select the process
// defaults; tests supply their own registry and paths.
type Options struct {
	// Version is stamped by the build.
	Version string
	// Registry holds the tool descriptors. Defaults to registry.Default(),
	// which bundled tool packages populate at import time.
	Registry *registry.Registry
	// ToolPaths are the external manifest directories to scan. Defaults to
	// registry.DefaultToolPaths(). An explicit empty slice disables scanning.
	ToolPaths []string
	// HistoryPath locates the invocation history database. Defaults to
	// history.DefaultPath(), resolved lazily on first dispatch.
	HistoryPath string
}

// NewRootCmd builds the okit root command. Scanning and attaching the tool
// palette happens here, once per process; no tool is constructed until its
// command is dispatched.
func NewRootCmd(opts Options) *cobra.Command {
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default()
	}

	var tracer *telemetry.Provider
	var registrar *registry.Registrar

	root := &cobra.Command{
		Use:           "okit",
		Short:         "Tool scripts manager",
		Long:          "okit - a manager for independent command-line tools, discovered at startup and loaded only when invoked.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := configureLogging(cmd); err != nil {
				return err
			}
			if enabled, _ := cmd.Flags().GetBool("trace"); enabled {
				p, err := telemetry.Setup(cmd.ErrOrStderr(), opts.Version)
				if err != nil {
					return err
				}
				tracer = p
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			registrar.Cleanup()
			if tracer == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracer.Shutdown(ctx)
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level: debug | info | warn | error")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output (equivalent to --log-level debug)")
	root.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors (equivalent to --log-level error)")
	root.PersistentFlags().Bool("trace", false, "Emit OpenTelemetry spans for discovery and dispatch to stderr")

	root.Version = opts.Version
	root.SetVersionTemplate(fmt.Sprintf("okit version %s\n", opts.Version))

	root.AddCommand(newHistoryCmd(opts.HistoryPath))

	registrar = registry.NewRegistrar(reg, registry.NodeOptions{
		Logger:   slog.Default(),
		Observer: newHistoryObserver(opts.HistoryPath, slog.Default()),
	})
	toolPaths := opts.ToolPaths
	if toolPaths == nil {
		paths, err := registry.DefaultToolPaths()
		if err != nil {
			slog.Warn("resolving tool paths failed", "error", err)
		}
		toolPaths = paths
	}
	registrar.ScanAll(toolPaths)
	registrar.Attach(root)

	return root
}

// configureLogging installs the default slog handler on stderr at the level
// selected by the persistent flags. Diagnostics never touch stdout.
func configureLogging(cmd *cobra.Command) error {
	levelName, _ := cmd.Flags().GetString("log-level")
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		levelName = "debug"
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		levelName = "error"
	}

	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return Exitf(ExitDispatch, "unknown log level %q", levelName)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
	return nil
}
