package mobaxtermcolors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"gopkg.in/ini.v1"
)

// updateCache clones the scheme repository on first use and pulls it
// afterwards.
func (t *Tool) updateCache(ctx context.Context) error {
	dir, err := t.cacheDir()
	if err != nil {
		return err
	}
	repoPath := filepath.Join(dir, "repo")

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mobaxterm-colors: create cache dir: %w", err)
		}
		if _, err := git.PlainCloneContext(ctx, repoPath, false, &git.CloneOptions{
			URL:   schemesRepoURL,
			Depth: 1,
		}); err != nil {
			return fmt.Errorf("mobaxterm-colors: clone scheme repo: %w", err)
		}
		t.Logger().Info("cloned scheme repository", "path", repoPath)
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("mobaxterm-colors: repo worktree: %w", err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("mobaxterm-colors: pull scheme repo: %w", err)
	}
	return nil
}

// cleanCache deletes the local cache entirely.
func (t *Tool) cleanCache() error {
	dir, err := t.cacheDir()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("mobaxterm-colors: clean cache: %w", err)
	}
	return nil
}

// schemesDir returns the directory holding the MobaXterm scheme exports.
func (t *Tool) schemesDir() (string, error) {
	dir, err := t.cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "repo", schemesSubdir), nil
}

// listSchemes returns the cached scheme names, sorted. An absent cache
// yields an empty list, not an error.
func (t *Tool) listSchemes() ([]string, error) {
	dir, err := t.schemesDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mobaxterm-colors: read schemes dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ini") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// loadScheme parses a scheme export into color key/value pairs. Exports are
// flat key=value files, some with an explicit [Colors] section; both shapes
// are accepted.
func (t *Tool) loadScheme(name string) (map[string]string, error) {
	dir, err := t.schemesDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name+".ini")
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("mobaxterm-colors: scheme %q: %w (run \"mobaxterm-colors cache --update\"?)", name, err)
	}

	colors := map[string]string{}
	for _, sectionName := range []string{ini.DefaultSection, "Colors"} {
		section, err := cfg.GetSection(sectionName)
		if err != nil {
			continue
		}
		for _, key := range section.Keys() {
			colors[key.Name()] = key.Value()
		}
	}
	if len(colors) == 0 {
		return nil, fmt.Errorf("mobaxterm-colors: scheme %q has no color entries", name)
	}
	return colors, nil
}

// applyScheme rewrites the [Colors] section of the MobaXterm.ini at iniPath
// with the named scheme. When backup is requested the previous file is
// copied into the tool's backup directory first; the backup path is
// returned.
func (t *Tool) applyScheme(name, iniPath string, backup bool) (string, error) {
	colors, err := t.loadScheme(name)
	if err != nil {
		return "", err
	}

	backupPath := ""
	if backup {
		backupPath, err = t.backupConfig(iniPath)
		if err != nil {
			return "", err
		}
	}

	cfg, err := ini.Load(iniPath)
	if err != nil {
		return "", fmt.Errorf("mobaxterm-colors: load %s: %w", iniPath, err)
	}
	section := cfg.Section("Colors")
	for key, value := range colors {
		section.Key(key).SetValue(value)
	}
	if err := cfg.SaveTo(iniPath); err != nil {
		return "", fmt.Errorf("mobaxterm-colors: save %s: %w", iniPath, err)
	}
	return backupPath, nil
}

// backupConfig copies the ini file into the tool's backup directory with a
// timestamped name.
func (t *Tool) backupConfig(iniPath string) (string, error) {
	data, err := os.ReadFile(iniPath)
	if err != nil {
		return "", fmt.Errorf("mobaxterm-colors: read %s: %w", iniPath, err)
	}
	dataDir, err := t.EnsureDataDir()
	if err != nil {
		return "", err
	}
	backupDir := filepath.Join(dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("mobaxterm-colors: create backup dir: %w", err)
	}
	backupPath := filepath.Join(backupDir,
		fmt.Sprintf("MobaXterm.ini.%s", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("mobaxterm-colors: write backup: %w", err)
	}
	return backupPath, nil
}
