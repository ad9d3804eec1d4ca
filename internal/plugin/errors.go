package plugin

import (
	"errors"

	"github.com/tablefri/pluginhost/internal/plugin/registry"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when no installed plugin has the id.
	ErrPluginNotFound = registry.ErrPluginNotFound

	// ErrPluginExists is returned when registering an id twice.
	ErrPluginExists = registry.ErrPluginExists

	// ErrNotEnabled is returned for calls into an installed plugin that is not loaded.
	ErrNotEnabled = errors.New("plugin is not enabled")

	// ErrModuleNotFound is returned when a plugin's module file is missing.
	ErrModuleNotFound = errors.New("plugin module file not found")

	// ErrInvalidPackage is returned for archives that cannot be installed.
	ErrInvalidPackage = errors.New("invalid plugin package")

	// ErrWindowNotFound is returned when a plugin declares no window of that name.
	ErrWindowNotFound = errors.New("plugin window not found")

	// ErrInvalidPath is returned for file paths that escape the plugin directory.
	ErrInvalidPath = errors.New("path escapes plugin directory")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("plugin manager is closed")
)
