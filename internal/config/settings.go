package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

// WorkspaceDir is the directory at the root of a workspace holding weft state.
const WorkspaceDir = ".weft"

// Defaults used when no settings file provides a value.
const (
	DefaultLargeRepoThreshold = 100000
	DefaultLogPageSize        = 50
	DefaultLogRevset          = "present(@) | ancestors(immutable_heads().., 2) | trunk()"
)

// BuiltinRevsetAliases are always defined; the revset-aliases table overrides them.
var BuiltinRevsetAliases = map[string]string{
	"trunk()":           `latest(remote_bookmarks(exact:"main") | remote_bookmarks(exact:"master") | remote_bookmarks(exact:"trunk") | root())`,
	"immutable_heads()": "trunk() | tags()",
	"immutable()":       "::immutable_heads()",
	"mutable()":         "~immutable()",
}

// Scope selects which settings file a write goes to.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeRepo Scope = "repo"
)

// ParseScope converts a scope name into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeUser, ScopeRepo:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown config scope %q", s)
}

// UserSettings identifies the author of new commits.
type UserSettings struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// RevsetSettings holds the default queries.
type RevsetSettings struct {
	Log           string `yaml:"log"`
	ShortPrefixes string `yaml:"short-prefixes"`
}

// SnapshotSettings controls when the working copy is snapshotted.
type SnapshotSettings struct {
	// AutoUpdate nil means "decide by repository size".
	AutoUpdate *bool `yaml:"auto-update"`
}

// UISettings controls presentation.
type UISettings struct {
	LargeRepoThreshold    int  `yaml:"large-repo-threshold"`
	LogPageSize           int  `yaml:"log-page-size"`
	MarkUnpushedBookmarks bool `yaml:"mark-unpushed-bookmarks"`
}

// GitSettings controls the colocated git backend.
type GitSettings struct {
	PushRemote   string   `yaml:"push-remote"`
	FetchRemotes []string `yaml:"fetch-remotes"`
}

// Settings is the merged view of the user and repo settings files.
// Repo values override user values key by key.
type Settings struct {
	User          UserSettings      `yaml:"user"`
	Revsets       RevsetSettings    `yaml:"revsets"`
	RevsetAliases map[string]string `yaml:"revset-aliases"`
	Snapshot      SnapshotSettings  `yaml:"snapshot"`
	UI            UISettings        `yaml:"ui"`
	Git           GitSettings       `yaml:"git"`

	raw      map[string]any
	userPath string
	repoPath string
}

// UserSettingsPath returns the path of the user-scope settings file.
func UserSettingsPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFileName), nil
}

// RepoSettingsPath returns the path of the repo-scope settings file for a workspace.
func RepoSettingsPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, WorkspaceDir, settingsFileName)
}

// LoadSettings loads the settings visible from a workspace.
func LoadSettings(workspaceRoot string) (*Settings, error) {
	userPath, err := UserSettingsPath()
	if err != nil {
		return nil, err
	}
	repoPath := ""
	if workspaceRoot != "" {
		repoPath = RepoSettingsPath(workspaceRoot)
	}
	return LoadSettingsFrom(userPath, repoPath)
}

// LoadSettingsFrom loads and merges two settings files. Missing files are
// treated as empty; an empty repoPath skips the repo scope.
func LoadSettingsFrom(userPath, repoPath string) (*Settings, error) {
	merged := map[string]any{}
	for _, p := range []string{userPath, repoPath} {
		if p == "" {
			continue
		}
		doc, err := readYAMLMap(p)
		if err != nil {
			return nil, err
		}
		mergeMaps(merged, doc)
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to merge settings: %w", err)
	}
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.raw = merged
	s.userPath = userPath
	s.repoPath = repoPath

	if e, err := LoadEnv(); err == nil {
		s.applyEnv(e)
	}
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv(e Env) {
	if e.UserName != "" {
		s.User.Name = e.UserName
	}
	if e.UserEmail != "" {
		s.User.Email = e.UserEmail
	}
	if e.PageSize > 0 {
		s.UI.LogPageSize = e.PageSize
	}
}

func (s *Settings) applyDefaults() {
	if s.Revsets.Log == "" {
		s.Revsets.Log = DefaultLogRevset
	}
	if s.UI.LargeRepoThreshold == 0 {
		s.UI.LargeRepoThreshold = DefaultLargeRepoThreshold
	}
	if s.UI.LogPageSize == 0 {
		s.UI.LogPageSize = DefaultLogPageSize
	}
	if s.Git.PushRemote == "" {
		s.Git.PushRemote = "origin"
	}
	if s.RevsetAliases == nil {
		s.RevsetAliases = map[string]string{}
	}
}

// Validate checks that numeric settings are usable.
func (s *Settings) Validate() error {
	if s.UI.LogPageSize < 0 {
		return fmt.Errorf("ui.log-page-size must be positive, got %d", s.UI.LogPageSize)
	}
	if s.UI.LargeRepoThreshold < 0 {
		return fmt.Errorf("ui.large-repo-threshold must be positive, got %d", s.UI.LargeRepoThreshold)
	}
	for name := range s.RevsetAliases {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("revset alias with empty name")
		}
	}
	return nil
}

// Reload reads the same settings files again.
func (s *Settings) Reload() (*Settings, error) {
	return LoadSettingsFrom(s.userPath, s.repoPath)
}

// DisambiguationRevset returns the revset within which id prefixes are
// shortened. Defaults to the log revset.
func (s *Settings) DisambiguationRevset() string {
	if s.Revsets.ShortPrefixes != "" {
		return s.Revsets.ShortPrefixes
	}
	return s.Revsets.Log
}

// Aliases returns the revset alias table with user entries overriding built-ins.
func (s *Settings) Aliases() map[string]string {
	out := make(map[string]string, len(BuiltinRevsetAliases)+len(s.RevsetAliases))
	for k, v := range BuiltinRevsetAliases {
		out[k] = v
	}
	for k, v := range s.RevsetAliases {
		out[k] = v
	}
	return out
}

// Path returns the settings file for a scope.
func (s *Settings) Path(scope Scope) (string, error) {
	switch scope {
	case ScopeUser:
		return s.userPath, nil
	case ScopeRepo:
		if s.repoPath == "" {
			return "", fmt.Errorf("no workspace is open")
		}
		return s.repoPath, nil
	}
	return "", fmt.Errorf("unknown config scope %q", scope)
}

// ReadArray returns the string array at a dotted key, or nil if unset.
func (s *Settings) ReadArray(key string) ([]string, error) {
	v, ok := lookup(s.raw, key)
	if !ok || v == nil {
		return nil, nil
	}
	return toStrings(key, v)
}

// WriteArray sets a dotted key to a string array in the settings file at
// path, creating the file and its directory if needed.
func WriteArray(path, key string, values []string) error {
	doc, err := readYAMLMap(path)
	if err != nil {
		return err
	}
	parts := strings.Split(key, ".")
	node := doc
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[p] = child
		}
		node = child
	}
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	node[parts[len(parts)-1]] = list

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// mergeMaps copies src into dst, descending into nested maps so that a
// repo file setting one key of a table keeps the user's other keys.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeMaps(dv, sv)
				continue
			}
			cp := map[string]any{}
			mergeMaps(cp, sv)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}

func lookup(m map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = m
	for _, p := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toStrings(key string, v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s contains a non-string value", key)
		}
		out = append(out, s)
	}
	return out, nil
}
