// Package api defines the data that crosses the boundary between the host
// and a native plugin.
//
// Nothing in this package is ever shared with a plugin as an in-memory
// object. Every value is serialized to JSON text before it is handed to a
// plugin entry point, and every value a plugin returns arrives as JSON text
// that is decoded into these types.
//
// # Manifest
//
// Each installed plugin directory carries a manifest.json:
//
//	{
//	  "id": "echo",
//	  "name": "Echo",
//	  "version": "1.0.0",
//	  "author": "someone",
//	  "description": "Echoes its input",
//	  "main": "libecho.so",
//	  "permissions": ["fs.read"],
//	  "hooks": ["app-started", "file-opened"],
//	  "ui": {
//	    "panel": "ui/panel.html",
//	    "position": "sidebar",
//	    "windows": {
//	      "viewer": {"path": "ui/viewer.html", "width": 800, "height": 600, "title": "Viewer"}
//	    }
//	  }
//	}
//
// The "tools" list in a manifest is informational. The authoritative tool
// list is always obtained from the live plugin.
//
// # Tool protocol
//
// A ToolCall names a tool and carries a JSON argument value. The plugin
// answers with a ToolResult. A result that claims success while also
// carrying an error message is treated as a failure; see ToolResult.Normalize.
package api
