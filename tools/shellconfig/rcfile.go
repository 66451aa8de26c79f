package shellconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Managed block markers. Everything between them belongs to okit and is
// rewritten wholesale; user content outside the block is never touched.
const (
	blockBegin = ">>> okit shellconfig >>>"
	blockEnd   = "<<< okit shellconfig <<<"
)

func beginMarker(info shellInfo) string { return info.comment + " " + blockBegin }
func endMarker(info shellInfo) string   { return info.comment + " " + blockEnd }

// rcFilePath resolves the shell's rc file under the user home directory.
func rcFilePath(info shellInfo) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("shellconfig: resolve user home: %w", err)
	}
	return filepath.Join(home, info.rcFile), nil
}

// managedBlock renders the block that sources the synced config file.
func managedBlock(info shellInfo, configFile string) string {
	return strings.Join([]string{
		beginMarker(info),
		fmt.Sprintf("%s %s", info.sourceCmd, configFile),
		endMarker(info),
	}, "\n")
}

// enableBlock inserts or replaces the managed block in the rc file,
// creating the file (and its directory) when missing.
func enableBlock(rcPath string, info shellInfo, configFile string) error {
	content := ""
	data, err := os.ReadFile(rcPath)
	switch {
	case err == nil:
		content = string(data)
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(rcPath), 0o755); err != nil {
			return fmt.Errorf("shellconfig: create rc dir: %w", err)
		}
	default:
		return fmt.Errorf("shellconfig: read %s: %w", rcPath, err)
	}

	block := managedBlock(info, configFile)
	if stripped, found := stripBlock(content, info); found {
		content = stripped
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += block + "\n"

	if err := os.WriteFile(rcPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("shellconfig: write %s: %w", rcPath, err)
	}
	return nil
}

// disableBlock removes the managed block. It reports whether one was found;
// a missing rc file counts as not found.
func disableBlock(rcPath string, info shellInfo) (bool, error) {
	data, err := os.ReadFile(rcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("shellconfig: read %s: %w", rcPath, err)
	}
	stripped, found := stripBlock(string(data), info)
	if !found {
		return false, nil
	}
	if err := os.WriteFile(rcPath, []byte(stripped), 0o644); err != nil {
		return false, fmt.Errorf("shellconfig: write %s: %w", rcPath, err)
	}
	return true, nil
}

// blockPresent reports whether the rc file currently carries the block.
func blockPresent(rcPath string, info shellInfo) (bool, error) {
	data, err := os.ReadFile(rcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("shellconfig: read %s: %w", rcPath, err)
	}
	return strings.Contains(string(data), beginMarker(info)), nil
}

// stripBlock removes the managed block (markers included) from content.
func stripBlock(content string, info shellInfo) (string, bool) {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	inBlock := false
	found := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == beginMarker(info):
			inBlock = true
			found = true
		case trimmed == endMarker(info):
			inBlock = false
		case !inBlock:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), found
}

// defaultConfig returns the starter snippet written when a shell has never
// been synced from the repository.
func defaultConfig(shell string) string {
	info := supportedShells[shell]
	c := info.comment
	switch shell {
	case "bash", "zsh":
		return fmt.Sprintf(`%[1]s %[2]s configuration
%[1]s Managed by okit shellconfig; manual edits are overwritten on sync.

alias ll='ls -la'
alias la='ls -A'

mkcd() {
    mkdir -p "$1" && cd "$1"
}

export EDITOR=vim
`, c, shell)
	case "powershell":
		return fmt.Sprintf(`%[1]s PowerShell configuration
%[1]s Managed by okit shellconfig; manual edits are overwritten on sync.

Set-Alias ll Get-ChildItem

function mkcd {
    param([string]$path)
    New-Item -ItemType Directory -Path $path -Force | Out-Null
    Set-Location $path
}

$env:EDITOR = "vim"
`, c)
	default:
		return fmt.Sprintf("%s %s configuration\n", c, shell)
	}
}
