package shellconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

// cloneOrOpen makes sure the configs repository exists at path, cloning it
// on first setup and leaving an existing clone alone.
func (t *Tool) cloneOrOpen(ctx context.Context, path, url string) error {
	if _, err := git.PlainOpen(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("shellconfig: create repo dir: %w", err)
	}
	if _, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{URL: url}); err != nil {
		return fmt.Errorf("shellconfig: clone %s: %w", url, err)
	}
	t.Logger().Info("cloned configs repository", "url", url, "path", path)
	return nil
}

// updateRepo pulls the latest configs. An up-to-date repository is not an
// error.
func (t *Tool) updateRepo(ctx context.Context, path string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return fmt.Errorf("shellconfig: open configs repo: %w (run \"shellconfig config setup --repo <url>\" first)", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("shellconfig: repo worktree: %w", err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("shellconfig: pull configs repo: %w", err)
	}
	return nil
}

// syncShell updates the repository and copies the shell's snippet into the
// data directory. When the repository has no snippet for the shell, the
// default config is written instead.
func (t *Tool) syncShell(ctx context.Context, shell string) error {
	repoPath, err := t.repoPath()
	if err != nil {
		return err
	}
	if err := t.updateRepo(ctx, repoPath); err != nil {
		return err
	}

	dst, err := t.shellConfigFile(shell)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("shellconfig: create config dir: %w", err)
	}

	src := filepath.Join(repoPath, shell, "config")
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logger().Warn("repository has no config for shell, writing default", "shell", shell)
			data = []byte(defaultConfig(shell))
		} else {
			return fmt.Errorf("shellconfig: read repo config: %w", err)
		}
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("shellconfig: write config: %w", err)
	}
	return nil
}
