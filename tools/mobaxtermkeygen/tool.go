package mobaxtermkeygen

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okit-dev/okit/registry"
	"github.com/okit-dev/okit/tool"
)

func init() {
	registry.MustRegister(tool.Descriptor{
		Name:        "mobaxterm-keygen",
		Description: "MobaXterm license key generator",
		Kind:        tool.KindGroup,
		New:         New,
	})
}

const licenseInfoFile = "license.yaml"

// Tool is the mobaxterm-keygen tool.
type Tool struct {
	*tool.Base

	// now is swapped out in tests for deterministic timestamps.
	now func() time.Time
}

// New constructs the tool.
func New(name, description string) (tool.Tool, error) {
	return &Tool{Base: tool.NewBase(name, description), now: time.Now}, nil
}

// AddCommands attaches the keygen subcommands.
func (t *Tool) AddCommands(cmd *cobra.Command) {
	cmd.AddCommand(t.newGenerateCmd())
	cmd.AddCommand(t.newValidateCmd())
	cmd.AddCommand(t.newInfoCmd())
}

func (t *Tool) newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a license key for a username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			version, _ := cmd.Flags().GetString("version")
			installPath, _ := cmd.Flags().GetString("install-path")

			info := NewLicenseInfo(username, version, t.now())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "license key:     %s\n", info.LicenseKey)
			fmt.Fprintf(out, "activation code: %s\n", info.ActivationCode)
			fmt.Fprintf(out, "expires:         %s\n", info.Expires)

			path, err := t.writeLicenseInfo(info, installPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "license info written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username the key is issued to")
	cmd.Flags().String("version", defaultVersion, "MobaXterm major.minor version")
	cmd.Flags().String("install-path", "", "Directory to write license info into (default: tool data dir)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (t *Tool) newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a license key against a username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			key, _ := cmd.Flags().GetString("key")
			version, _ := cmd.Flags().GetString("version")

			if !ValidateKey(username, key, version) {
				return fmt.Errorf("mobaxterm-keygen: key is not valid for %q (version %s)", username, version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key is valid for %q (version %s)\n", username, version)
			return nil
		},
	}
	cmd.Flags().StringP("username", "u", "", "Username the key was issued to")
	cmd.Flags().StringP("key", "k", "", "License key to check")
	cmd.Flags().String("version", defaultVersion, "MobaXterm major.minor version")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func (t *Tool) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the last generated license info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, path, err := t.readLicenseInfo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source: %s\n", path)
			fmt.Fprintf(out, "username:        %s\n", info.Username)
			fmt.Fprintf(out, "version:         %s\n", info.Version)
			fmt.Fprintf(out, "type:            %s\n", info.Type)
			fmt.Fprintf(out, "created:         %s\n", info.Created)
			fmt.Fprintf(out, "expires:         %s\n", info.Expires)
			fmt.Fprintf(out, "license key:     %s\n", info.LicenseKey)
			fmt.Fprintf(out, "activation code: %s\n", info.ActivationCode)
			return nil
		},
	}
}

// writeLicenseInfo stores the license record as YAML under dir, or the tool
// data directory when dir is empty.
func (t *Tool) writeLicenseInfo(info LicenseInfo, dir string) (string, error) {
	var err error
	if dir == "" {
		dir, err = t.EnsureDataDir()
		if err != nil {
			return "", err
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mobaxterm-keygen: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, licenseInfoFile)
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("mobaxterm-keygen: write %s: %w", path, err)
	}
	return path, nil
}

func (t *Tool) readLicenseInfo() (LicenseInfo, string, error) {
	dir, err := t.DataDir()
	if err != nil {
		return LicenseInfo{}, "", err
	}
	path := filepath.Join(dir, licenseInfoFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return LicenseInfo{}, "", fmt.Errorf("mobaxterm-keygen: no license info found; run generate first: %w", err)
	}
	var info LicenseInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return LicenseInfo{}, "", fmt.Errorf("mobaxterm-keygen: parse %s: %w", path, err)
	}
	return info, path, nil
}
