package api

import "strings"

// PluginContext is handed to plugin_initialize on every enable.
type PluginContext struct {
	PluginID string  `json:"plugin_id"`
	DataDir  string  `json:"data_dir"`
	Config   RawJSON `json:"config"`
}

// ToolDefinition describes a tool exposed by a loaded plugin.
type ToolDefinition struct {
	// PluginID is stamped by the host with the owning plugin's id.
	PluginID    string  `json:"pluginId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  RawJSON `json:"parameters,omitempty"`
}

// ToolCall is a request to run a single tool.
type ToolCall struct {
	Name      string  `json:"name"`
	Arguments RawJSON `json:"arguments"`
}

// ToolResult is the answer to a ToolCall.
type ToolResult struct {
	Success bool    `json:"success"`
	Data    RawJSON `json:"data,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// ErrNoData is the failure message used when execute_tool returns null.
const ErrNoData = "plugin returned no data"

// Success returns a successful result carrying data.
func Success(data RawJSON) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// Failure returns a failed result with the given message.
func Failure(msg string) ToolResult {
	return ToolResult{Success: false, Error: msg}
}

// Normalize enforces the result invariant: a result reporting success while
// carrying an error message is a failure.
func (r ToolResult) Normalize() ToolResult {
	if r.Success && strings.TrimSpace(r.Error) != "" {
		r.Success = false
	}
	if !r.Success && r.Error == "" {
		r.Error = "tool failed"
	}
	return r
}

// HookResult is a single plugin's non-null response to a hook.
type HookResult struct {
	PluginID string  `json:"pluginId"`
	Data     RawJSON `json:"data"`
}

// PluginInfo is the listing projection of an installed plugin.
type PluginInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	UI          *UI    `json:"ui,omitempty"`
	Dir         string `json:"dir"`
}
