// Package mobaxtermcolors applies terminal color schemes to a MobaXterm
// configuration file. Schemes come from the iTerm2-Color-Schemes repository,
// cached locally in the tool data directory.
package mobaxtermcolors

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okit-dev/okit/registry"
	"github.com/okit-dev/okit/tool"
)

func init() {
	registry.MustRegister(tool.Descriptor{
		Name:        "mobaxterm-colors",
		Description: "MobaXterm color scheme management tool",
		Kind:        tool.KindGroup,
		New:         New,
	})
}

// Upstream scheme collection. The repository ships per-terminal exports;
// only the mobaxterm directory is consumed here.
const (
	schemesRepoURL = "https://github.com/mbadolato/iTerm2-Color-Schemes"
	schemesSubdir  = "mobaxterm"
)

// Tool is the mobaxterm-colors tool.
type Tool struct {
	*tool.Base
}

// New constructs the tool. The scheme cache is not inspected or updated
// here; that happens inside the commands.
func New(name, description string) (tool.Tool, error) {
	return &Tool{Base: tool.NewBase(name, description)}, nil
}

// AddCommands attaches the color scheme subcommands.
func (t *Tool) AddCommands(cmd *cobra.Command) {
	cmd.AddCommand(t.newListCmd())
	cmd.AddCommand(t.newApplyCmd())
	cmd.AddCommand(t.newCacheCmd())
	cmd.AddCommand(t.newStatusCmd())
}

func (t *Tool) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available color schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			limit, _ := cmd.Flags().GetInt("limit")

			names, err := t.listSchemes()
			if err != nil {
				return err
			}
			shown := 0
			for _, name := range names {
				if search != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(search)) {
					continue
				}
				if limit > 0 && shown >= limit {
					fmt.Fprintf(cmd.OutOrStdout(), "... (%d more, raise --limit to see them)\n", len(names)-shown)
					break
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No schemes found. Run \"mobaxterm-colors cache --update\" first.")
			}
			return nil
		},
	}
	cmd.Flags().String("search", "", "Filter schemes by substring")
	cmd.Flags().Int("limit", 20, "Maximum schemes to list (0 = all)")
	return cmd
}

func (t *Tool) newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a color scheme to MobaXterm.ini",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, _ := cmd.Flags().GetString("scheme")
			configPath, _ := cmd.Flags().GetString("config")
			noBackup, _ := cmd.Flags().GetBool("no-backup")

			iniPath, err := t.resolveConfigPath(configPath)
			if err != nil {
				return err
			}
			backupPath, err := t.applyScheme(scheme, iniPath, !noBackup)
			if err != nil {
				return err
			}
			if backupPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", backupPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied scheme %q to %s\n", scheme, iniPath)
			return nil
		},
	}
	cmd.Flags().String("scheme", "", "Color scheme name")
	cmd.Flags().String("config", "", "Path to MobaXterm.ini (default: configured ini_path)")
	cmd.Flags().Bool("no-backup", false, "Skip the backup before applying")
	_ = cmd.MarkFlagRequired("scheme")
	return cmd
}

func (t *Tool) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local scheme cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			update, _ := cmd.Flags().GetBool("update")
			clean, _ := cmd.Flags().GetBool("clean")
			switch {
			case clean:
				if err := t.cleanCache(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleaned.")
			case update:
				if err := t.updateCache(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache updated.")
			default:
				return fmt.Errorf("mobaxterm-colors: cache requires --update or --clean")
			}
			return nil
		},
	}
	cmd.Flags().Bool("update", false, "Clone or pull the scheme repository")
	cmd.Flags().Bool("clean", false, "Delete the local cache")
	return cmd
}

func (t *Tool) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache and configuration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if iniPath, err := t.resolveConfigPath(""); err == nil {
				fmt.Fprintf(out, "config: %s\n", iniPath)
			} else {
				fmt.Fprintln(out, "config: not configured (set ini_path or pass --config to apply)")
			}

			names, err := t.listSchemes()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "cached schemes: %d\n", len(names))
			return nil
		},
	}
}

// resolveConfigPath picks the MobaXterm.ini location: the explicit flag
// wins, then the ini_path config value.
func (t *Tool) resolveConfigPath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = t.ConfigString("ini_path")
	}
	if path == "" {
		return "", fmt.Errorf("mobaxterm-colors: no MobaXterm.ini configured; pass --config or set ini_path")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("mobaxterm-colors: config file %s: %w", path, err)
	}
	return path, nil
}

// cacheDir returns the root of the scheme cache.
func (t *Tool) cacheDir() (string, error) {
	dir, err := t.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache"), nil
}

// ValidateConfig reports whether a MobaXterm.ini path is configured.
func (t *Tool) ValidateConfig() bool {
	return t.Base.ValidateConfig() && t.ConfigString("ini_path") != ""
}
