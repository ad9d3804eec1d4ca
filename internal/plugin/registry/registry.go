// Package registry keeps the persisted catalog of installed plugins.
//
// Each plugin lives in its own directory under the plugins root and is
// described by the manifest.json inside it. Whether a plugin is enabled and
// its configuration are stored in registry.json at the root. The state file
// is rewritten after every mutation; if the write fails the mutation is
// undone, so the in-memory catalog never runs ahead of the file.
//
// Directories whose names start with a dot are ignored, which is how
// in-progress installs stay invisible.
//
// A Registry is not safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// Registry errors.
var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrPluginExists   = errors.New("plugin already installed")
	ErrCorruptState   = errors.New("corrupt registry state file")
)

// Entry is one installed plugin.
type Entry struct {
	Manifest   *api.Manifest
	Dir        string
	ModulePath string
	Enabled    bool
	Config     api.RawJSON
}

// Info returns the listing projection of the entry.
func (e *Entry) Info() api.PluginInfo {
	return api.PluginInfo{
		ID:          e.Manifest.ID,
		Name:        e.Manifest.Name,
		Version:     e.Manifest.Version,
		Author:      e.Manifest.Author,
		Description: e.Manifest.Description,
		Enabled:     e.Enabled,
		UI:          e.Manifest.Clone().UI,
		Dir:         e.Dir,
	}
}

// DataDir returns the plugin's private data directory.
func (e *Entry) DataDir() string {
	return filepath.Join(e.Dir, "data")
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Manifest = e.Manifest.Clone()
	c.Config = append(api.RawJSON(nil), e.Config...)
	return &c
}

// Registry is the catalog of installed plugins.
type Registry struct {
	dir       string
	statePath string
	logger    *zap.Logger
	entries   map[string]*Entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New opens the registry rooted at pluginsDir, creating the directory if
// needed, and scans it.
func New(pluginsDir string, opts ...Option) (*Registry, error) {
	dir, err := filepath.Abs(pluginsDir)
	if err != nil {
		return nil, fmt.Errorf("plugins dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plugins dir: %w", err)
	}

	r := &Registry{
		dir:       dir,
		statePath: filepath.Join(dir, StateFile),
		logger:    zap.NewNop(),
		entries:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the absolute plugins root.
func (r *Registry) Dir() string {
	return r.dir
}

// StatePath returns the path of the state file.
func (r *Registry) StatePath() string {
	return r.statePath
}

// Refresh rebuilds the catalog from the plugins root and the state file.
func (r *Registry) Refresh() error {
	state, err := loadState(r.statePath)
	if err != nil {
		return err
	}
	entries, err := r.scan(state)
	if err != nil {
		return err
	}
	r.entries = entries
	return nil
}

// scan reads every plugin directory under the root.
func (r *Registry) scan(state persistedState) (map[string]*Entry, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("scan plugins dir: %w", err)
	}

	entries := make(map[string]*Entry, len(dirEntries))
	for _, de := range dirEntries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		pluginDir := filepath.Join(r.dir, de.Name())
		if _, err := os.Stat(filepath.Join(pluginDir, api.ManifestFile)); err != nil {
			continue
		}

		m, err := api.LoadManifestFromDir(pluginDir)
		if err != nil {
			r.logger.Warn("skipping plugin with invalid manifest",
				zap.String("dir", pluginDir), zap.Error(err))
			continue
		}
		if prev, ok := entries[m.ID]; ok {
			r.logger.Warn("skipping duplicate plugin id",
				zap.String("plugin", m.ID),
				zap.String("dir", pluginDir),
				zap.String("kept", prev.Dir))
			continue
		}

		e := newEntry(m, pluginDir)
		if ps, ok := state.Plugins[m.ID]; ok {
			e.Enabled = ps.Enabled
			if !api.IsNull(ps.Config) {
				e.Config = ps.Config
			}
		}
		entries[m.ID] = e
	}
	return entries, nil
}

func newEntry(m *api.Manifest, dir string) *Entry {
	return &Entry{
		Manifest:   m,
		Dir:        dir,
		ModulePath: filepath.Join(dir, m.Main),
		Config:     api.EmptyConfig(),
	}
}

// Register adds a freshly installed plugin, disabled and with empty config.
func (r *Registry) Register(m *api.Manifest, dir string) (api.PluginInfo, error) {
	if m == nil {
		return api.PluginInfo{}, fmt.Errorf("register: %w: nil manifest", api.ErrInvalidManifest)
	}
	if _, ok := r.entries[m.ID]; ok {
		return api.PluginInfo{}, fmt.Errorf("plugin %q: %w", m.ID, ErrPluginExists)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return api.PluginInfo{}, fmt.Errorf("plugin %q: %w", m.ID, err)
	}

	e := newEntry(m.Clone(), abs)
	r.entries[m.ID] = e
	if err := r.flush(); err != nil {
		delete(r.entries, m.ID)
		return api.PluginInfo{}, err
	}
	return e.Info(), nil
}

// Unregister removes a plugin from the catalog. Files are not touched.
func (r *Registry) Unregister(id string) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	delete(r.entries, id)
	if err := r.flush(); err != nil {
		r.entries[id] = e
		return err
	}
	return nil
}

// SetEnabled records whether the plugin is enabled.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	prev := e.Enabled
	e.Enabled = enabled
	if err := r.flush(); err != nil {
		e.Enabled = prev
		return err
	}
	return nil
}

// SetConfig replaces the plugin's configuration, which must be valid JSON.
func (r *Registry) SetConfig(id string, config api.RawJSON) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	if !api.Valid(config) {
		return fmt.Errorf("plugin %q: config is not valid JSON", id)
	}
	prev := e.Config
	e.Config = append(api.RawJSON(nil), config...)
	if err := r.flush(); err != nil {
		e.Config = prev
		return err
	}
	return nil
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (*Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	return e.clone(), nil
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// OwnerOf returns the id of the plugin installed in dir, if any.
func (r *Registry) OwnerOf(dir string) (string, bool) {
	dir = filepath.Clean(dir)
	for _, id := range r.ids() {
		if filepath.Clean(r.entries[id].Dir) == dir {
			return id, true
		}
	}
	return "", false
}

// List returns every plugin sorted by id.
func (r *Registry) List() []api.PluginInfo {
	infos := make([]api.PluginInfo, 0, len(r.entries))
	for _, id := range r.ids() {
		infos = append(infos, r.entries[id].Info())
	}
	return infos
}

// EnabledPlugins returns the ids of enabled plugins, sorted.
func (r *Registry) EnabledPlugins() []string {
	var ids []string
	for _, id := range r.ids() {
		if r.entries[id].Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) ids() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) flush() error {
	state := persistedState{Plugins: make(map[string]persistedPlugin, len(r.entries))}
	for id, e := range r.entries {
		state.Plugins[id] = persistedPlugin{Enabled: e.Enabled, Config: api.OrNull(e.Config)}
	}
	if err := saveState(r.statePath, state); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}
