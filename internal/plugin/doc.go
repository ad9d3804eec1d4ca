// Package plugin hosts native plugins for the application.
//
// A plugin is an independently compiled shared library that exports a fixed
// set of C entry points (see package native) and ships with a manifest.json
// (see package api). The Manager ties the pieces together:
//
//   - registry: which plugins are installed, which are enabled, their config
//   - native:   the loaded modules and their entry points
//   - hook:     which loaded plugins subscribe to which host events
//
// # Lifecycle
//
//	install → enable → use (tools, hooks, windows) → disable → uninstall
//
// Install extracts a zip package into its own directory under the plugins
// root and registers it disabled. Enable opens the module, hands the plugin
// its context (id, data directory and configuration) through
// plugin_initialize, subscribes its manifest hooks and records it enabled.
// Disable reverses those steps. Uninstall disables, unregisters and removes
// the directory.
//
// Outside of a Manager call a plugin is enabled in the registry exactly when
// its module is loaded. A failed enable is rolled back; a failed restore at
// startup records the plugin as disabled.
//
// # Quick Start
//
//	mgr, err := plugin.NewManager(pluginsDir, plugin.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	info, err := mgr.Install("echo.zip")
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Enable(info.ID); err != nil {
//	    return err
//	}
//
//	res, err := mgr.ExecuteTool(info.ID, api.ToolCall{Name: "hello"})
//
// # Concurrency
//
// Every Manager method takes one exclusive lock and holds it across native
// calls. Plugin calls cannot be cancelled, so a plugin that hangs stalls
// every other caller until it returns.
//
// # Shutdown
//
// Close shuts down and unloads every loaded plugin without changing the
// persisted enabled flags, so the next Manager over the same directory
// restores the same set.
package plugin
