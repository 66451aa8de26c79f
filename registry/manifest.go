package registry

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okit-dev/okit/tool"
)

// Manifest declares an external, exec-backed tool. Manifests live as
// *.yaml files under the tool path directories and are discovered by the
// registrar scan; each one becomes a lazy command or group whose
// subcommands shell out to the configured command.
type Manifest struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Exec        *ExecSpec        `yaml:"exec,omitempty"`
	Subcommands []SubcommandSpec `yaml:"subcommands,omitempty"`
}

// ExecSpec describes the command an external tool runs. Arguments given on
// the okit command line are appended to Args.
type ExecSpec struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// SubcommandSpec declares one subcommand of a group-shaped external tool.
type SubcommandSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Exec        ExecSpec `yaml:"exec"`
}

// ErrInvalidManifest is wrapped by manifest validation failures.
var ErrInvalidManifest = errors.New("registry: invalid tool manifest")

// LoadManifest reads and validates a tool manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("registry: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("registry: parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks the manifest declares a name and exactly one command shape.
func (m Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if m.Exec == nil && len(m.Subcommands) == 0 {
		return fmt.Errorf("%w: tool %q declares neither exec nor subcommands", ErrInvalidManifest, m.Name)
	}
	if m.Exec != nil && len(m.Subcommands) > 0 {
		return fmt.Errorf("%w: tool %q declares both exec and subcommands", ErrInvalidManifest, m.Name)
	}
	if m.Exec != nil && m.Exec.Command == "" {
		return fmt.Errorf("%w: tool %q has an empty exec command", ErrInvalidManifest, m.Name)
	}
	for _, sub := range m.Subcommands {
		if sub.Name == "" {
			return fmt.Errorf("%w: tool %q has an unnamed subcommand", ErrInvalidManifest, m.Name)
		}
		if sub.Exec.Command == "" {
			return fmt.Errorf("%w: tool %q subcommand %q has an empty exec command", ErrInvalidManifest, m.Name, sub.Name)
		}
	}
	return nil
}

// Kind returns the tool kind implied by the manifest shape.
func (m Manifest) Kind() tool.Kind {
	if m.Exec != nil {
		return tool.KindCommand
	}
	return tool.KindGroup
}

// Descriptor converts the manifest into a registrable tool descriptor.
func (m Manifest) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        m.Name,
		Description: m.Description,
		Kind:        m.Kind(),
		New: func(name, description string) (tool.Tool, error) {
			return &execTool{
				Base:     tool.NewBase(name, description),
				manifest: m,
			}, nil
		},
	}
}

// execTool adapts a manifest into the tool contract. Every command runs the
// declared external program with the caller's arguments appended.
type execTool struct {
	*tool.Base
	manifest Manifest
}

// AddCommands populates cmd from the manifest shape.
func (t *execTool) AddCommands(cmd *cobra.Command) {
	if t.manifest.Exec != nil {
		cmd.DisableFlagParsing = true
		cmd.Args = cobra.ArbitraryArgs
		cmd.RunE = t.runExec(*t.manifest.Exec)
		return
	}
	for _, sub := range t.manifest.Subcommands {
		cmd.AddCommand(&cobra.Command{
			Use:                sub.Name,
			Short:              sub.Description,
			DisableFlagParsing: true,
			Args:               cobra.ArbitraryArgs,
			SilenceUsage:       true,
			RunE:               t.runExec(sub.Exec),
		})
	}
}

func (t *execTool) runExec(spec ExecSpec) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		proc := exec.CommandContext(cmd.Context(), spec.Command, append(append([]string{}, spec.Args...), args...)...)
		proc.Env = os.Environ()
		for k, v := range spec.Env {
			proc.Env = append(proc.Env, k+"="+v)
		}
		proc.Stdin = cmd.InOrStdin()
		proc.Stdout = cmd.OutOrStdout()
		proc.Stderr = cmd.ErrOrStderr()
		if err := proc.Run(); err != nil {
			return fmt.Errorf("registry: tool %q: running %s: %w", t.Name(), spec.Command, err)
		}
		return nil
	}
}

// ValidateConfig reports whether every declared command resolves on PATH.
func (t *execTool) ValidateConfig() bool {
	if t.manifest.Exec != nil {
		_, err := exec.LookPath(t.manifest.Exec.Command)
		return err == nil
	}
	for _, sub := range t.manifest.Subcommands {
		if _, err := exec.LookPath(sub.Exec.Command); err != nil {
			return false
		}
	}
	return true
}
