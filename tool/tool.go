// Package tool defines the contract every okit tool implements and the
// shared base functionality (logging, per-tool config and data directories)
// tools build on. The core treats tools uniformly through this contract and
// never reaches into tool internals.
package tool

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Kind distinguishes tools exposing a single command from tools exposing a
// group of subcommands.
type Kind string

const (
	// KindCommand marks a tool whose AddCommands populates one command:
	// it sets RunE, flags, and args directly on the command it is given.
	KindCommand Kind = "command"
	// KindGroup marks a tool whose AddCommands attaches subcommands to the
	// command it is given.
	KindGroup Kind = "group"
)

// Tool is the minimal capability set every okit tool provides.
//
// Construction happens through the Constructor carried on a Descriptor and
// must be cheap: no network, no repository access, no filesystem scans.
// Heavy setup belongs inside command execution.
type Tool interface {
	// AddCommands populates cmd with the tool's command surface. For
	// KindCommand tools cmd is the tool's own command; for KindGroup tools
	// subcommands are attached to it. Implementations should tolerate being
	// called more than once on distinct commands.
	AddCommands(cmd *cobra.Command)

	// ValidateConfig is a cheap self-check. Missing optional configuration
	// is reported as false, never as an error; tools that consider invalid
	// config fatal fail explicitly during command execution.
	ValidateConfig() bool

	// Cleanup is best-effort teardown. Failures are logged by the caller
	// and never abort the process.
	Cleanup() error
}

// Constructor builds a tool instance from its declared name and description.
type Constructor func(name, description string) (Tool, error)

// Descriptor declares a tool to the registry without constructing it.
// Descriptors are created at registration time and are immutable afterwards.
type Descriptor struct {
	// Name is the unique, stable command name the tool is dispatched under.
	Name string
	// Description doubles as the command help text.
	Description string
	// Kind selects the lazy wrapper: single command or command group.
	Kind Kind
	// New constructs the tool. It is not called until the tool's command
	// is actually invoked or its subcommands are enumerated.
	New Constructor
}

// ErrInvalidDescriptor is wrapped by Descriptor.Validate failures.
var ErrInvalidDescriptor = errors.New("tool: invalid descriptor")

// Validate reports whether the descriptor is complete enough to register.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if d.New == nil {
		return fmt.Errorf("%w: tool %q has no constructor", ErrInvalidDescriptor, d.Name)
	}
	switch d.Kind {
	case KindCommand, KindGroup:
	default:
		return fmt.Errorf("%w: tool %q has unknown kind %q", ErrInvalidDescriptor, d.Name, d.Kind)
	}
	return nil
}

// Help returns the long help text for the tool's command.
func (d Descriptor) Help() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Name + " tool"
}

// ShortHelp returns the one-line help shown in the root command listing.
func (d Descriptor) ShortHelp() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Name
}
