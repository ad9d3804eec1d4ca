package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/hook"
	"github.com/tablefri/pluginhost/internal/plugin/native"
	"github.com/tablefri/pluginhost/internal/plugin/registry"
)

// Manager sequences install, enable, use, disable and uninstall.
//
// One mutex covers the loader, the registry and the hook dispatcher, and it
// is held for the full duration of every operation including native calls.
// A plugin that never returns therefore blocks every other Manager call.
type Manager struct {
	mu sync.Mutex

	registry *registry.Registry
	loader   *native.Loader
	hooks    *hook.Dispatcher
	logger   *zap.Logger

	opener       native.Opener
	validateArgs bool
	closed       bool

	// Event handlers (protected by hmu)
	hmu      sync.Mutex
	handlers []EventHandler
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its components.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithOpener sets how native modules are opened.
func WithOpener(o native.Opener) Option {
	return func(m *Manager) {
		m.opener = o
	}
}

// WithArgumentValidation checks tool arguments against the tool's parameter
// schema before calling into the plugin.
func WithArgumentValidation(enabled bool) Option {
	return func(m *Manager) {
		m.validateArgs = enabled
	}
}

// WithEventHandler subscribes h before startup restoration runs.
func WithEventHandler(h EventHandler) Option {
	return func(m *Manager) {
		m.handlers = append(m.handlers, h)
	}
}

// NewManager opens the plugins root and re-enables every plugin that was
// enabled when the registry was last persisted. A plugin that fails to come
// back is logged and recorded as disabled.
func NewManager(pluginsDir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		hooks:  hook.NewDispatcher(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	reg, err := registry.New(pluginsDir, registry.WithLogger(m.logger.Named("registry")))
	if err != nil {
		return nil, err
	}
	m.registry = reg

	loaderOpts := []native.LoaderOption{native.WithLogger(m.logger.Named("loader"))}
	if m.opener != nil {
		loaderOpts = append(loaderOpts, native.WithOpener(m.opener))
	}
	m.loader = native.NewLoader(loaderOpts...)

	m.mu.Lock()
	events := m.restoreLocked()
	m.mu.Unlock()
	m.emit(events...)

	return m, nil
}

// restoreLocked enables every registry-enabled plugin that is not loaded.
func (m *Manager) restoreLocked() []Event {
	var events []Event
	for _, id := range m.registry.EnabledPlugins() {
		if m.loader.IsLoaded(id) {
			continue
		}
		err := m.enableLocked(id)
		if err == nil {
			m.logger.Info("plugin restored", zap.String("plugin", id))
			events = append(events, Event{Type: EventEnabled, Plugin: id})
			continue
		}
		m.logger.Warn("failed to restore plugin", zap.String("plugin", id), zap.Error(err))
		events = append(events, Event{Type: EventError, Plugin: id, Error: err})
		if serr := m.registry.SetEnabled(id, false); serr != nil {
			m.logger.Error("failed to record plugin as disabled", zap.String("plugin", id), zap.Error(serr))
		}
	}
	return events
}

// PluginsDir returns the absolute plugins root.
func (m *Manager) PluginsDir() string {
	return m.registry.Dir()
}

// Enable loads and initializes a plugin, subscribes its hooks and records it
// as enabled. Enabling a loaded plugin does nothing.
func (m *Manager) Enable(id string) error {
	m.mu.Lock()
	err := m.checkOpen()
	if err == nil {
		err = m.enableLocked(id)
	}
	m.mu.Unlock()

	m.emit(eventFor(EventEnabled, id, err))
	return err
}

func (m *Manager) enableLocked(id string) error {
	e, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	if m.loader.IsLoaded(id) {
		return nil
	}

	if _, err := os.Stat(e.ModulePath); err != nil {
		return fmt.Errorf("plugin %q: %w: %s", id, ErrModuleNotFound, e.ModulePath)
	}
	if err := m.loader.Load(id, e.ModulePath); err != nil {
		return err
	}

	dataDir := e.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		m.unloadQuietly(id)
		return fmt.Errorf("plugin %q: create data dir: %w", id, err)
	}

	ctx := api.PluginContext{PluginID: id, DataDir: dataDir, Config: e.Config}
	if err := m.loader.Initialize(id, ctx); err != nil {
		m.abortEnable(id)
		return err
	}

	for _, name := range e.Manifest.Hooks {
		if !hook.Known(name) {
			m.logger.Warn("plugin subscribes to unknown hook",
				zap.String("plugin", id), zap.String("hook", name))
		}
	}
	m.hooks.RegisterMany(e.Manifest.Hooks, id)

	if err := m.registry.SetEnabled(id, true); err != nil {
		m.hooks.UnregisterAll(id)
		m.abortEnable(id)
		return err
	}

	m.logger.Info("plugin enabled", zap.String("plugin", id))
	return nil
}

// abortEnable undoes a partially completed enable.
func (m *Manager) abortEnable(id string) {
	if err := m.loader.Shutdown(id); err != nil {
		m.logger.Debug("shutdown during rollback", zap.String("plugin", id), zap.Error(err))
	}
	m.unloadQuietly(id)
}

func (m *Manager) unloadQuietly(id string) {
	if err := m.loader.Unload(id); err != nil {
		m.logger.Warn("failed to unload plugin", zap.String("plugin", id), zap.Error(err))
	}
}

// Disable unsubscribes the plugin's hooks, shuts it down, unloads it and
// records it as disabled. A shutdown failure is returned after the plugin
// has still been unloaded and recorded as disabled.
func (m *Manager) Disable(id string) error {
	m.mu.Lock()
	err := m.checkOpen()
	if err == nil {
		err = m.disableLocked(id)
	}
	m.mu.Unlock()

	m.emit(eventFor(EventDisabled, id, err))
	return err
}

func (m *Manager) disableLocked(id string) error {
	if !m.registry.Exists(id) {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}

	m.hooks.UnregisterAll(id)

	var shutdownErr error
	if m.loader.IsLoaded(id) {
		shutdownErr = m.loader.Shutdown(id)
		m.unloadQuietly(id)
	}

	if err := m.registry.SetEnabled(id, false); err != nil {
		return errors.Join(shutdownErr, err)
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	m.logger.Info("plugin disabled", zap.String("plugin", id))
	return nil
}

// Uninstall disables the plugin, removes it from the registry and deletes
// its directory.
func (m *Manager) Uninstall(id string) error {
	m.mu.Lock()
	err := m.checkOpen()
	if err == nil {
		err = m.uninstallLocked(id)
	}
	m.mu.Unlock()

	m.emit(eventFor(EventUninstalled, id, err))
	return err
}

func (m *Manager) uninstallLocked(id string) error {
	e, err := m.registry.Get(id)
	if err != nil {
		return err
	}

	if err := m.disableLocked(id); err != nil {
		m.logger.Warn("disable during uninstall", zap.String("plugin", id), zap.Error(err))
	}
	if err := m.registry.Unregister(id); err != nil {
		return err
	}

	if !m.insideRoot(e.Dir) {
		m.logger.Warn("plugin directory outside plugins root left in place",
			zap.String("plugin", id), zap.String("dir", e.Dir))
		return nil
	}
	if err := os.RemoveAll(e.Dir); err != nil {
		return fmt.Errorf("plugin %q: remove directory: %w", id, err)
	}

	m.logger.Info("plugin uninstalled", zap.String("plugin", id))
	return nil
}

func (m *Manager) insideRoot(dir string) bool {
	rel, err := filepath.Rel(m.registry.Dir(), dir)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !filepath.IsAbs(rel) &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// List returns every installed plugin sorted by id.
func (m *Manager) List() []api.PluginInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.List()
}

// Get returns one installed plugin.
func (m *Manager) Get(id string) (api.PluginInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.registry.Get(id)
	if err != nil {
		return api.PluginInfo{}, err
	}
	return e.Info(), nil
}

// Manifest returns a copy of the plugin's manifest.
func (m *Manager) Manifest(id string) (*api.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return e.Manifest, nil
}

// IsEnabled reports whether the plugin is loaded.
func (m *Manager) IsEnabled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loader.IsLoaded(id)
}

// Config returns the plugin's stored configuration.
func (m *Manager) Config(id string) (api.RawJSON, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	return e.Config, nil
}

// SetConfig stores new configuration for the plugin. It is delivered to the
// plugin on its next enable.
func (m *Manager) SetConfig(id string, config api.RawJSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.registry.SetConfig(id, config)
}

// Refresh rebuilds the catalog from disk. Loaded plugins that disappeared or
// are no longer enabled are torn down; enabled plugins that are not loaded
// are enabled, or recorded as disabled when that fails.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	events, err := m.refreshLocked()
	m.mu.Unlock()

	m.emit(events...)
	return err
}

func (m *Manager) refreshLocked() ([]Event, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if err := m.registry.Refresh(); err != nil {
		return []Event{{Type: EventError, Error: err}}, err
	}

	var events []Event
	for _, id := range m.loader.Loaded() {
		e, err := m.registry.Get(id)
		if err == nil && e.Enabled {
			continue
		}
		m.teardown(id)
		events = append(events, Event{Type: EventDisabled, Plugin: id})
	}
	events = append(events, m.restoreLocked()...)
	events = append(events, Event{Type: EventRefreshed})
	return events, nil
}

// teardown clears hooks, shuts down and unloads without touching the registry.
func (m *Manager) teardown(id string) error {
	m.hooks.UnregisterAll(id)
	var errs []error
	if err := m.loader.Shutdown(id); err != nil {
		m.logger.Warn("shutdown during teardown", zap.String("plugin", id), zap.Error(err))
		errs = append(errs, err)
	}
	if err := m.loader.Unload(id); err != nil {
		m.logger.Warn("unload during teardown", zap.String("plugin", id), zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close shuts down and unloads every loaded plugin. The registry keeps its
// enabled flags so the next Manager restores the same set. Any later call
// returns ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.hooks.Clear()

	var errs []error
	for _, id := range m.loader.Loaded() {
		if err := m.teardown(id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to shut down %d plugins: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (m *Manager) checkOpen() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}
