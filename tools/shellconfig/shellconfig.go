// Package shellconfig manages shell configuration snippets synced from a
// git repository. Snippets live in the tool data directory and are hooked
// into the shell's rc file through a managed marker block.
package shellconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okit-dev/okit/registry"
	"github.com/okit-dev/okit/tool"
)

func init() {
	registry.MustRegister(tool.Descriptor{
		Name:        "shellconfig",
		Description: "Shell configuration management tool",
		Kind:        tool.KindGroup,
		New:         New,
	})
}

// shellInfo describes one supported shell.
type shellInfo struct {
	rcFile    string // relative to the user home dir
	comment   string
	sourceCmd string
}

var supportedShells = map[string]shellInfo{
	"bash": {
		rcFile:    ".bashrc",
		comment:   "#",
		sourceCmd: "source",
	},
	"zsh": {
		rcFile:    ".zshrc",
		comment:   "#",
		sourceCmd: "source",
	},
	"powershell": {
		rcFile:    filepath.Join(".config", "powershell", "Microsoft.PowerShell_profile.ps1"),
		comment:   "#",
		sourceCmd: ".",
	},
}

func shellNames() []string {
	names := make([]string, 0, len(supportedShells))
	for name := range supportedShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tool is the shellconfig tool.
type Tool struct {
	*tool.Base
}

// New constructs the tool. The configs repository is not touched here;
// cloning and pulling happen inside the commands that need them.
func New(name, description string) (tool.Tool, error) {
	return &Tool{Base: tool.NewBase(name, description)}, nil
}

// repoPath returns where the configs repository is cloned.
func (t *Tool) repoPath() (string, error) {
	dir, err := t.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "configs_repo"), nil
}

// shellConfigFile returns the synced config file path for a shell.
func (t *Tool) shellConfigFile(shell string) (string, error) {
	dir, err := t.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, shell, "config"), nil
}

// AddCommands attaches the shellconfig subcommands.
func (t *Tool) AddCommands(cmd *cobra.Command) {
	cmd.AddCommand(t.newConfigCmd())
	cmd.AddCommand(t.newSyncCmd())
	cmd.AddCommand(t.newEnableCmd())
	cmd.AddCommand(t.newDisableCmd())
	cmd.AddCommand(t.newStatusCmd())
	cmd.AddCommand(t.newSourceCmd())
}

func (t *Tool) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "config <get|set|list|setup> [key] [value]",
		Short:     "Manage shellconfig settings",
		Args:      cobra.RangeArgs(1, 3),
		ValidArgs: []string{"get", "set", "list", "setup"},
		RunE:      t.runConfig,
	}
	cmd.Flags().String("repo", "", "Git repository URL holding shell configs (setup)")
	return cmd
}

func (t *Tool) runConfig(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("shellconfig: config get requires a key")
		}
		v, ok := t.ConfigValue(args[1])
		if !ok {
			return fmt.Errorf("shellconfig: key %q is not set", args[1])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", v)
		return nil

	case "set":
		if len(args) < 3 {
			return fmt.Errorf("shellconfig: config set requires a key and a value")
		}
		key, value := args[1], args[2]
		if key == "sync.schedule" {
			if _, err := cron.ParseStandard(value); err != nil {
				return fmt.Errorf("shellconfig: invalid sync schedule %q: %w", value, err)
			}
		}
		t.SetConfigValue(key, value)
		if err := t.SaveConfig(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
		return nil

	case "list":
		keys := t.ConfigKeys()
		sort.Strings(keys)
		for _, key := range keys {
			v, _ := t.ConfigValue(key)
			data, err := yaml.Marshal(map[string]any{key: v})
			if err != nil {
				return fmt.Errorf("shellconfig: encode config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
		}
		return nil

	case "setup":
		repoURL, _ := cmd.Flags().GetString("repo")
		if repoURL == "" {
			return fmt.Errorf("shellconfig: config setup requires --repo")
		}
		t.SetConfigValue("repo.url", repoURL)
		if err := t.SaveConfig(); err != nil {
			return err
		}
		path, err := t.repoPath()
		if err != nil {
			return err
		}
		if err := t.cloneOrOpen(cmd.Context(), path, repoURL); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configs repository ready at %s\n", path)
		return nil

	default:
		return fmt.Errorf("shellconfig: unknown config action %q", args[0])
	}
}

func (t *Tool) newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sync <shell>",
		Short:     "Sync the shell's config snippet from the configs repository",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			if _, ok := supportedShells[shell]; !ok {
				return fmt.Errorf("shellconfig: unsupported shell %q", shell)
			}
			if err := t.syncShell(cmd.Context(), shell); err != nil {
				return err
			}
			path, _ := t.shellConfigFile(shell)
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %s config to %s\n", shell, path)
			return nil
		},
	}
}

func (t *Tool) newEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "enable <shell>",
		Short:     "Hook the synced config into the shell's rc file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			info, ok := supportedShells[shell]
			if !ok {
				return fmt.Errorf("shellconfig: unsupported shell %q", shell)
			}
			configFile, err := t.ensureShellConfig(shell)
			if err != nil {
				return err
			}
			rcPath, err := rcFilePath(info)
			if err != nil {
				return err
			}
			if err := enableBlock(rcPath, info, configFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enabled %s config in %s\n", shell, rcPath)
			return nil
		},
	}
}

func (t *Tool) newDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "disable <shell>",
		Short:     "Remove the managed block from the shell's rc file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			info, ok := supportedShells[shell]
			if !ok {
				return fmt.Errorf("shellconfig: unsupported shell %q", shell)
			}
			rcPath, err := rcFilePath(info)
			if err != nil {
				return err
			}
			removed, err := disableBlock(rcPath, info)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Disabled %s config in %s\n", shell, rcPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "No managed block found in %s\n", rcPath)
			}
			return nil
		},
	}
}

func (t *Tool) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "status <shell>",
		Short:     "Show sync and hook status for a shell",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			info, ok := supportedShells[shell]
			if !ok {
				return fmt.Errorf("shellconfig: unsupported shell %q", shell)
			}
			out := cmd.OutOrStdout()

			configFile, err := t.shellConfigFile(shell)
			if err != nil {
				return err
			}
			if _, err := os.Stat(configFile); err == nil {
				fmt.Fprintf(out, "config: %s\n", configFile)
			} else {
				fmt.Fprintln(out, "config: not synced")
			}

			rcPath, err := rcFilePath(info)
			if err != nil {
				return err
			}
			enabled, err := blockPresent(rcPath, info)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "enabled: %v\n", enabled)

			if url := t.ConfigString("repo.url"); url != "" {
				fmt.Fprintf(out, "repo: %s\n", url)
			} else {
				fmt.Fprintln(out, "repo: not configured")
			}

			if schedule := t.ConfigString("sync.schedule"); schedule != "" {
				sched, err := cron.ParseStandard(schedule)
				if err != nil {
					return fmt.Errorf("shellconfig: invalid sync schedule %q: %w", schedule, err)
				}
				fmt.Fprintf(out, "next sync: %s\n", sched.Next(time.Now()).Format(time.RFC3339))
			}
			return nil
		},
	}
}

func (t *Tool) newSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "source <shell>",
		Short:     "Print the command that loads the synced config",
		Args:      cobra.ExactArgs(1),
		ValidArgs: shellNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			info, ok := supportedShells[shell]
			if !ok {
				return fmt.Errorf("shellconfig: unsupported shell %q", shell)
			}
			configFile, err := t.shellConfigFile(shell)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", info.sourceCmd, configFile)
			return nil
		},
	}
}

// ensureShellConfig makes sure a config snippet exists for the shell,
// writing the default when nothing has been synced yet.
func (t *Tool) ensureShellConfig(shell string) (string, error) {
	path, err := t.shellConfigFile(shell)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("shellconfig: create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig(shell)), 0o644); err != nil {
		return "", fmt.Errorf("shellconfig: write default config: %w", err)
	}
	return path, nil
}

// ValidateConfig reports whether a configs repository has been set up.
func (t *Tool) ValidateConfig() bool {
	return t.Base.ValidateConfig() && t.ConfigString("repo.url") != ""
}
