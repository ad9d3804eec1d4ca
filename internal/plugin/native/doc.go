// Package native loads plugin shared libraries and calls their entry points.
//
// A plugin module exports seven C-callable symbols. The names are the
// compatibility boundary and never change:
//
//	int32_t plugin_initialize(const char *ctx_json);
//	int32_t plugin_shutdown(void);
//	char   *plugin_get_tools(void);
//	char   *plugin_execute_tool(const char *call_json);
//	char   *plugin_on_hook(const char *hook_name, const char *data_json);
//	void    plugin_free_string(char *s);
//	char   *plugin_get_last_error(void);
//
// All seven are resolved when a module is loaded; a module missing any of
// them is rejected and its handle released. Every string a plugin returns
// is owned by the plugin and is handed back to plugin_free_string once the
// host has copied it.
//
// Modules are opened without cgo. Linux and macOS use dlopen through purego,
// Windows uses LoadLibrary. The Opener interface lets tests substitute
// in-memory modules (see package nativetest).
//
// The Loader is not safe for concurrent use. Callers serialize access.
package native
