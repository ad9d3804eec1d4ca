package api

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ActionOpenWindow asks the host to open one of the plugin's windows.
const ActionOpenWindow = "open_window"

// ErrMissingWindow is returned for an open_window action without a window name.
var ErrMissingWindow = errors.New("open_window action without window")

// ToolAction is a side effect requested through a successful tool result:
//
//	{"action": "open_window", "window": "viewer", "title": "...", "windowData": {...}}
type ToolAction struct {
	Action     string
	Window     string
	Title      string
	WindowData RawJSON
}

// ParseToolAction extracts the side-effect request carried in result data.
// It returns false when the data is not an object or names no action.
func ParseToolAction(data RawJSON) (ToolAction, bool, error) {
	if IsNull(data) {
		return ToolAction{}, false, nil
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return ToolAction{}, false, nil
	}
	action := doc.Get("action")
	if action.Type != gjson.String || action.Str == "" {
		return ToolAction{}, false, nil
	}

	a := ToolAction{Action: action.Str}
	if a.Action != ActionOpenWindow {
		return a, true, nil
	}
	window := doc.Get("window")
	if window.Type != gjson.String {
		return a, true, ErrMissingWindow
	}
	a.Window = window.Str
	if title := doc.Get("title"); title.Type == gjson.String {
		a.Title = title.Str
	}
	if wd := doc.Get("windowData"); wd.Exists() {
		a.WindowData = RawJSON(wd.Raw)
	}
	return a, true, nil
}
