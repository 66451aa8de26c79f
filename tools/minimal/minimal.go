// Package minimal is the example okit tool: a small command group that
// demonstrates the tool contract (construction, command wiring, config
// validation) without touching any external system.
package minimal

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okit-dev/okit/registry"
	"github.com/okit-dev/okit/tool"
)

func init() {
	registry.MustRegister(tool.Descriptor{
		Name:        "minimal",
		Description: "Minimal example tool demonstrating the tool contract",
		Kind:        tool.KindGroup,
		New:         New,
	})
}

// Tool is the example tool.
type Tool struct {
	*tool.Base
	startedAt time.Time
	greeting  string
}

// New constructs the example tool. Construction is cheap on purpose.
func New(name, description string) (tool.Tool, error) {
	return &Tool{
		Base:      tool.NewBase(name, description),
		startedAt: time.Now(),
		greeting:  "Hello",
	}, nil
}

// AddCommands attaches the example subcommands.
func (t *Tool) AddCommands(cmd *cobra.Command) {
	cmd.AddCommand(t.newHelloCmd())
	cmd.AddCommand(t.newEchoCmd())
	cmd.AddCommand(t.newInfoCmd())
	cmd.AddCommand(t.newTestConfigCmd())
	cmd.AddCommand(t.newAdvancedCmd())
}

func (t *Tool) newHelloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hello",
		Short: "Display a greeting message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			fmt.Fprintf(cmd.OutOrStdout(), "%s, %s!\n", t.greeting, name)
			fmt.Fprintf(cmd.OutOrStdout(), "From tool: %s\n", t.Name())
			return nil
		},
	}
	cmd.Flags().StringP("name", "n", "World", "Name to greet")
	return cmd
}

func (t *Tool) newEchoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "echo [message]",
		Short: "Echo a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := "default message"
			if len(args) > 0 {
				message = args[0]
			}
			if upper, _ := cmd.Flags().GetBool("uppercase"); upper {
				message = strings.ToUpper(message)
			}
			repeat, _ := cmd.Flags().GetInt("repeat")
			for i := 0; i < repeat; i++ {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i+1, message)
			}
			return nil
		},
	}
	cmd.Flags().IntP("repeat", "r", 1, "Number of repetitions")
	cmd.Flags().BoolP("uppercase", "u", false, "Convert to uppercase")
	return cmd
}

func (t *Tool) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Display tool information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "name\t%s\n", t.Name())
			fmt.Fprintf(w, "description\t%s\n", t.Description())
			fmt.Fprintf(w, "started\t%s\n", t.startedAt.Format(time.RFC3339))
			return w.Flush()
		},
	}
}

func (t *Tool) newTestConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-config",
		Short: "Run the tool's configuration self-check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.ValidateConfig() {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration validation passed.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration validation failed.")
			}
			return nil
		},
	}
}

func (t *Tool) newAdvancedCmd() *cobra.Command {
	advanced := &cobra.Command{
		Use:   "advanced",
		Short: "Advanced functionality command group",
	}
	advanced.AddCommand(&cobra.Command{
		Use:   "sum <numbers>...",
		Short: "Calculate the sum of integers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total := 0
			for _, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("minimal: not a number: %q", arg)
				}
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sum: %d\n", total)
			return nil
		},
	})
	return advanced
}

// ValidateConfig extends the base check with the tool's example state.
func (t *Tool) ValidateConfig() bool {
	return t.Base.ValidateConfig() && t.greeting != ""
}
