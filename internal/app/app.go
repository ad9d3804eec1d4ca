// Package app wires configuration, logging, the plugin manager, the
// plugins-root watcher and the LLM tool catalog into one application.
package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/config"
	"github.com/tablefri/pluginhost/internal/llmtool"
	"github.com/tablefri/pluginhost/internal/logging"
	"github.com/tablefri/pluginhost/internal/plugin"
	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/hook"
	"github.com/tablefri/pluginhost/internal/plugin/native"
	"github.com/tablefri/pluginhost/internal/plugin/watcher"
)

// Application owns every long-lived component.
type Application struct {
	mu sync.Mutex

	config  *config.Config
	logger  *logging.Logger
	plugins *plugin.Manager
	tools   *llmtool.Catalog
	watcher *watcher.Watcher

	running atomic.Bool
	closed  bool

	opts Options
}

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses the default location.
	ConfigPath string

	// PluginsDir overrides the configured plugins root.
	PluginsDir string

	// LogLevel overrides the configured log level.
	LogLevel string

	// LogOutput receives console log output.
	LogOutput io.Writer

	// Opener replaces the platform module opener.
	Opener native.Opener
}

// New creates a new Application with the given options.
func New(opts Options) (*Application, error) {
	app := &Application{opts: opts}
	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *zap.Logger {
	return app.logger.Logger
}

// Plugins returns the plugin manager.
func (app *Application) Plugins() *plugin.Manager {
	return app.plugins
}

// Tools returns the LLM tool catalog. It is refreshed on every plugin
// lifecycle event.
func (app *Application) Tools() *llmtool.Catalog {
	return app.tools
}

// Run announces app-started, watches the plugins root when configured and
// blocks until ctx is done, then announces app-closing. Plugins are shut
// down by Shutdown, not by Run.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	app.mu.Lock()
	if app.closed {
		app.mu.Unlock()
		return ErrShutdown
	}
	if app.config.Watcher.Enabled {
		w, err := watcher.New(app.plugins.PluginsDir(), app.plugins,
			watcher.WithDebounce(app.config.Watcher.Interval()),
			watcher.WithLogger(app.logger.Named("watcher")),
			watcher.WithIgnore(pluginStateFiles()...))
		if err != nil {
			app.mu.Unlock()
			return &ComponentError{Component: "watcher", Action: "start", Err: err}
		}
		app.watcher = w
	}
	app.mu.Unlock()

	app.broadcast(hook.AppStarted)
	app.logger.Info("plugin host running",
		zap.String("plugins", app.plugins.PluginsDir()),
		zap.Int("enabled", countEnabled(app.plugins.List())))

	<-ctx.Done()

	app.broadcast(hook.AppClosing)
	return nil
}

func (app *Application) broadcast(name string) {
	results := app.plugins.TriggerHook(name, api.RawJSON(`{}`))
	app.logger.Debug("hook broadcast", zap.String("hook", name), zap.Int("responses", len(results)))
}

// Shutdown stops the watcher, shuts down every loaded plugin and flushes
// the log. It is safe to call more than once.
func (app *Application) Shutdown() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.closed {
		return nil
	}
	app.closed = true

	var errs []error
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			errs = append(errs, &ComponentError{Component: "watcher", Action: "close", Err: err})
		}
	}
	if err := app.plugins.Close(); err != nil {
		app.logger.Error("plugin shutdown incomplete", zap.Error(err))
		errs = append(errs, &ComponentError{Component: "plugins", Action: "close", Err: err})
	}
	app.logger.Info("plugin host stopped")
	if err := app.logger.Close(); err != nil {
		errs = append(errs, &ComponentError{Component: "logging", Action: "close", Err: err})
	}
	return errors.Join(errs...)
}

func countEnabled(infos []api.PluginInfo) int {
	n := 0
	for _, info := range infos {
		if info.Enabled {
			n++
		}
	}
	return n
}
