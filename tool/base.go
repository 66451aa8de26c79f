package tool

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvHome overrides the base directory for all okit state.
	EnvHome = "OKIT_HOME"

	defaultHomeDir = ".okit"
	configFileName = "config.yaml"
)

// HomeDir returns the base directory for okit state: $OKIT_HOME if set,
// otherwise ~/.okit.
func HomeDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultHomeDir), nil
}

// Base provides the shared tool functionality: a named slog logger and
// per-tool config and data directories with YAML-backed settings.
// Tool implementations embed Base and override what they need.
type Base struct {
	name        string
	description string
	logger      *slog.Logger

	config       map[string]any
	configLoaded bool
}

// NewBase creates the shared base for a tool.
func NewBase(name, description string) *Base {
	return &Base{
		name:        name,
		description: description,
		logger:      slog.Default().With("tool", name),
		config:      map[string]any{},
	}
}

// Name returns the tool's registered name.
func (b *Base) Name() string { return b.name }

// Description returns the tool's declared description.
func (b *Base) Description() string { return b.description }

// Logger returns the tool-scoped logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// ConfigDir returns the tool's config directory (~/.okit/config/<tool>).
func (b *Base) ConfigDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config", b.name), nil
}

// DataDir returns the tool's data directory (~/.okit/data/<tool>), used for
// cached artifacts. The directory is not created until EnsureDataDir.
func (b *Base) DataDir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "data", b.name), nil
}

// EnsureDataDir creates the data directory if needed and returns its path.
func (b *Base) EnsureDataDir() (string, error) {
	dir, err := b.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("tool: create data dir: %w", err)
	}
	return dir, nil
}

// ConfigFile returns the path of the tool's YAML config file.
func (b *Base) ConfigFile() (string, error) {
	dir, err := b.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadConfig reads the tool's config file into memory. A missing file is not
// an error; it yields an empty config.
func (b *Base) LoadConfig() error {
	path, err := b.ConfigFile()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			b.config = map[string]any{}
			b.configLoaded = true
			return nil
		}
		return fmt.Errorf("tool: read config %s: %w", path, err)
	}
	cfg := map[string]any{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("tool: parse config %s: %w", path, err)
	}
	b.config = cfg
	b.configLoaded = true
	return nil
}

// SaveConfig writes the in-memory config back to the config file, creating
// the config directory on first save.
func (b *Base) SaveConfig() error {
	dir, err := b.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tool: create config dir: %w", err)
	}
	data, err := yaml.Marshal(b.config)
	if err != nil {
		return fmt.Errorf("tool: encode config: %w", err)
	}
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tool: write config %s: %w", path, err)
	}
	return nil
}

// ConfigValue looks up a dotted key ("repo.url") in the tool config,
// loading the config file on first access.
func (b *Base) ConfigValue(key string) (any, bool) {
	if !b.configLoaded {
		if err := b.LoadConfig(); err != nil {
			b.logger.Warn("loading config failed", "error", err)
			return nil, false
		}
	}
	var cur any = b.config
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ConfigString returns a string config value, or the empty string when the
// key is absent or not a string.
func (b *Base) ConfigString(key string) string {
	v, ok := b.ConfigValue(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SetConfigValue sets a dotted key in the tool config. Intermediate maps are
// created as needed. The caller persists with SaveConfig.
func (b *Base) SetConfigValue(key string, value any) {
	if !b.configLoaded {
		if err := b.LoadConfig(); err != nil {
			b.logger.Warn("loading config failed", "error", err)
		}
	}
	parts := strings.Split(key, ".")
	cur := b.config
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// ConfigKeys returns the top-level keys currently set, unsorted.
func (b *Base) ConfigKeys() []string {
	if !b.configLoaded {
		if err := b.LoadConfig(); err != nil {
			b.logger.Warn("loading config failed", "error", err)
		}
	}
	keys := make([]string, 0, len(b.config))
	for k := range b.config {
		keys = append(keys, k)
	}
	return keys
}

// ValidateConfig implements the default self-check: the tool has a name.
func (b *Base) ValidateConfig() bool {
	return b.name != ""
}

// Cleanup implements best-effort teardown; the base has nothing to tear down.
func (b *Base) Cleanup() error { return nil }
