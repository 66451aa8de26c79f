package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okit-dev/okit/tool"
)

// EnvToolPath lists additional manifest directories, separated by the OS
// path list separator.
const EnvToolPath = "OKIT_TOOL_PATH"

// Registrar populates a registry from external manifest directories and
// attaches the full palette to a root command as lazy wrappers. Discovery
// failures are diagnostics, never fatal: one broken tool must not hide the
// rest of the palette.
type Registrar struct {
	reg      *Registry
	logger   *slog.Logger
	observer Observer
	nodes    []interface{ Cleanup() }
}

// NewRegistrar creates a registrar over reg.
func NewRegistrar(reg *Registry, opts NodeOptions) *Registrar {
	return &Registrar{
		reg:      reg,
		logger:   opts.logger(),
		observer: opts.Observer,
	}
}

// DefaultToolPaths returns the manifest directories scanned at startup:
// ~/.okit/tools.d plus any OKIT_TOOL_PATH entries.
func DefaultToolPaths() ([]string, error) {
	home, err := tool.HomeDir()
	if err != nil {
		return nil, err
	}
	paths := []string{filepath.Join(home, "tools.d")}
	for _, p := range filepath.SplitList(os.Getenv(EnvToolPath)) {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// ScanDir walks dir recursively and registers every tool manifest found.
// Files that are not *.yaml/*.yml are skipped silently; manifests that fail
// to load or collide with an already-registered name are logged to the
// diagnostic stream and skipped. A missing directory is not an error.
// Returns the number of tools registered.
func (r *Registrar) ScanDir(dir string) int {
	registered := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			r.logger.Warn("tool scan error", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		m, err := LoadManifest(path)
		if err != nil {
			r.logger.Warn("skipping broken tool manifest", "path", path, "error", err)
			return nil
		}
		if err := r.reg.Register(m.Descriptor()); err != nil {
			r.logger.Warn("skipping tool registration", "path", path, "tool", m.Name, "error", err)
			return nil
		}
		registered++
		return nil
	})
	if err != nil {
		r.logger.Warn("tool scan aborted", "dir", dir, "error", err)
	}
	return registered
}

// ScanAll scans every directory in order. Registration order follows
// discovery order; under the first-wins collision policy earlier
// directories shadow later ones.
func (r *Registrar) ScanAll(dirs []string) int {
	total := 0
	for _, dir := range dirs {
		total += r.ScanDir(dir)
	}
	return total
}

// Attach wraps every registered descriptor in a lazy command or group and
// adds it to root. No tool is constructed here; the root help listing works
// even when every tool's construction would fail.
func (r *Registrar) Attach(root *cobra.Command) {
	_, span := otel.Tracer(tracerName).Start(context.Background(), "registry.attach",
		trace.WithAttributes(attribute.Int("okit.tools", r.reg.Len())))
	defer span.End()

	opts := NodeOptions{Logger: r.logger, Observer: r.observer}
	for _, desc := range r.reg.Descriptors() {
		switch desc.Kind {
		case tool.KindGroup:
			node := NewLazyGroup(desc, opts)
			r.nodes = append(r.nodes, node)
			root.AddCommand(node.Command())
		case tool.KindCommand:
			node := NewLazyCommand(desc, opts)
			r.nodes = append(r.nodes, node)
			root.AddCommand(node.Command())
		default:
			// Register validates kinds; this is unreachable for table entries.
			r.logger.Warn("skipping descriptor with unknown kind",
				"tool", desc.Name, "kind", fmt.Sprintf("%v", desc.Kind))
		}
	}
}

// Cleanup tears down every tool the process actually materialized. Called
// once after dispatch finishes; nodes that were never invoked are untouched.
func (r *Registrar) Cleanup() {
	for _, node := range r.nodes {
		node.Cleanup()
	}
}
