package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxRecentWorkspaces bounds the recent-workspace list shown by the CLI.
const maxRecentWorkspaces = 20

// RecentWorkspace records a workspace the user has opened.
type RecentWorkspace struct {
	Root       string    `json:"root"`
	Colocated  bool      `json:"colocated,omitempty"`
	LastOpened time.Time `json:"last_opened"`
}

// Config holds the application configuration
type Config struct {
	Workspaces           []RecentWorkspace `json:"workspaces"`
	Theme                string            `json:"theme,omitempty"`                 // Terminal theme name (e.g., "dark", "light")
	NotificationsEnabled bool              `json:"notifications_enabled,omitempty"` // Desktop notifications when a push/fetch finishes
	LastRevset           map[string]string `json:"last_revset,omitempty"`           // Per-workspace last log query

	mu       sync.RWMutex
	filePath string
}

// configDir returns the path to the config directory. WEFT_CONFIG_DIR
// overrides the default of ~/.weft.
func configDir() (string, error) {
	if env, err := LoadEnv(); err == nil && env.ConfigDir != "" {
		return env.ConfigDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".weft"), nil
}

// Dir returns the config directory used for the app config and user settings.
func Dir() (string, error) {
	return configDir()
}

// configPath returns the path to the config file
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or creates a new one if it doesn't exist
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return loadFrom(path)
}

func loadFrom(path string) (*Config, error) {
	cfg := &Config{
		Workspaces: []RecentWorkspace{},
		LastRevset: make(map[string]string),
		filePath:   path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Must happen before Validate() since Validate() only reads
	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ensureInitialized ensures all slices and maps are initialized (not nil).
// Not thread-safe; only called from Load before the Config is shared.
func (c *Config) ensureInitialized() {
	if c.Workspaces == nil {
		c.Workspaces = []RecentWorkspace{}
	}
	if c.LastRevset == nil {
		c.LastRevset = make(map[string]string)
	}
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, ws := range c.Workspaces {
		if ws.Root == "" {
			return fmt.Errorf("empty workspace root found")
		}
		if seen[ws.Root] {
			return fmt.Errorf("duplicate workspace: %s", ws.Root)
		}
		seen[ws.Root] = true
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// TouchWorkspace moves root to the front of the recent list, adding it if needed.
func (c *Config) TouchWorkspace(root string, colocated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := RecentWorkspace{Root: root, Colocated: colocated, LastOpened: time.Now()}
	kept := []RecentWorkspace{entry}
	for _, ws := range c.Workspaces {
		if ws.Root != root {
			kept = append(kept, ws)
		}
	}
	if len(kept) > maxRecentWorkspaces {
		kept = kept[:maxRecentWorkspaces]
	}
	c.Workspaces = kept
}

// RemoveWorkspace removes a workspace from the recent list.
// Returns true if the workspace was found and removed, false otherwise.
func (c *Config) RemoveWorkspace(root string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ws := range c.Workspaces {
		if ws.Root == root {
			c.Workspaces = append(c.Workspaces[:i], c.Workspaces[i+1:]...)
			return true
		}
	}
	return false
}

// GetWorkspaces returns a copy of the recent workspaces, most recent first
func (c *Config) GetWorkspaces() []RecentWorkspace {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RecentWorkspace, len(c.Workspaces))
	copy(out, c.Workspaces)
	return out
}

// GetTheme returns the current theme name
func (c *Config) GetTheme() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Theme
}

// SetTheme sets the current theme name
func (c *Config) SetTheme(theme string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Theme = theme
}

// GetNotificationsEnabled returns whether desktop notifications are enabled
func (c *Config) GetNotificationsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.NotificationsEnabled
}

// SetNotificationsEnabled sets whether desktop notifications are enabled
func (c *Config) SetNotificationsEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NotificationsEnabled = enabled
}

// GetLastRevset returns the last log query used in a workspace
func (c *Config) GetLastRevset(root string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastRevset[root]
}

// SetLastRevset records the last log query used in a workspace
func (c *Config) SetLastRevset(root, revset string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if revset == "" {
		delete(c.LastRevset, root)
		return
	}
	c.LastRevset[root] = revset
}
