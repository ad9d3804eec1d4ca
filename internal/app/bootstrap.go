package app

import (
	"os"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/config"
	"github.com/tablefri/pluginhost/internal/llmtool"
	"github.com/tablefri/pluginhost/internal/logging"
	"github.com/tablefri/pluginhost/internal/plugin"
	"github.com/tablefri/pluginhost/internal/plugin/registry"
)

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

// newBootstrapper creates a new bootstrapper for the application.
func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      app.opts,
		initOrder: make([]string, 0, 4),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() error {
	steps := []func() error{
		b.initConfig,
		b.initLogging,
		b.initPlugins,
		b.initTools,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	return nil
}

// initConfig loads the configuration and applies command-line overrides.
func (b *bootstrapper) initConfig() error {
	cfg, err := config.Load(b.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	if b.opts.PluginsDir != "" {
		cfg.Plugins.Dir = b.opts.PluginsDir
	}
	if b.opts.LogLevel != "" {
		cfg.Logging.Level = b.opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}

	b.app.config = cfg
	b.initOrder = append(b.initOrder, "config")
	return nil
}

// initLogging builds the logger from the logging section.
func (b *bootstrapper) initLogging() error {
	out := b.opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := logging.New(b.app.config.Logging, out)
	if err != nil {
		return &InitError{Component: "logging", Err: err}
	}

	b.app.logger = logger
	b.initOrder = append(b.initOrder, "logging")
	return nil
}

// initPlugins opens the plugins root and restores enabled plugins.
func (b *bootstrapper) initPlugins() error {
	opts := []plugin.Option{
		plugin.WithLogger(b.app.logger.Named("plugins")),
		plugin.WithArgumentValidation(b.app.config.Plugins.ValidateArguments),
		plugin.WithEventHandler(b.logEvent),
	}
	if b.opts.Opener != nil {
		opts = append(opts, plugin.WithOpener(b.opts.Opener))
	}

	mgr, err := plugin.NewManager(b.app.config.Plugins.Dir, opts...)
	if err != nil {
		return &InitError{Component: "plugins", Err: err}
	}

	b.app.plugins = mgr
	b.initOrder = append(b.initOrder, "plugins")
	return nil
}

// initTools builds the LLM tool catalog and keeps it in step with plugin
// lifecycle changes.
func (b *bootstrapper) initTools() error {
	b.app.tools = llmtool.NewCatalog(b.app.plugins, llmtool.WithLogger(b.app.logger.Named("tools")))
	b.app.plugins.Subscribe(func(ev plugin.Event) {
		if ev.Type != plugin.EventError {
			b.app.tools.Refresh()
		}
	})
	b.initOrder = append(b.initOrder, "tools")
	return nil
}

func (b *bootstrapper) logEvent(ev plugin.Event) {
	if b.app.logger == nil {
		return
	}
	if ev.Type == plugin.EventError {
		b.app.logger.Warn("plugin operation failed", zap.String("plugin", ev.Plugin), zap.Error(ev.Error))
		return
	}
	b.app.logger.Debug("plugin event", zap.Stringer("event", ev.Type), zap.String("plugin", ev.Plugin))
}

// cleanup performs cleanup in reverse initialization order.
// Called when bootstrap fails partway through.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(b.initOrder[i])
	}
}

// cleanupComponent cleans up a single component.
func (b *bootstrapper) cleanupComponent(component string) {
	switch component {
	case "config":
		b.app.config = nil
	case "logging":
		if b.app.logger != nil {
			_ = b.app.logger.Close()
			b.app.logger = nil
		}
	case "plugins":
		if b.app.plugins != nil {
			_ = b.app.plugins.Close()
			b.app.plugins = nil
		}
	case "tools":
		b.app.tools = nil
	}
}

// pluginStateFiles are written by the manager itself and must not trigger
// a refresh.
func pluginStateFiles() []string {
	return []string{registry.StateFile, registry.StateFile + ".tmp"}
}
