package plugin

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/hook"
)

// GetTools returns the tools a loaded plugin exposes right now.
func (m *Manager) GetTools(id string) ([]api.ToolDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireLoaded(id); err != nil {
		return nil, err
	}
	return m.loader.GetTools(id)
}

// GetAllTools returns the tools of every loaded plugin, grouped by plugin id
// in sorted order. Plugins whose tool list cannot be read are skipped.
func (m *Manager) GetAllTools() []api.ToolDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []api.ToolDefinition
	if m.closed {
		return all
	}
	for _, id := range m.loader.Loaded() {
		tools, err := m.loader.GetTools(id)
		if err != nil {
			m.logger.Warn("failed to read plugin tools", zap.String("plugin", id), zap.Error(err))
			continue
		}
		all = append(all, tools...)
	}
	return all
}

// ExecuteTool runs a tool of a loaded plugin. Calling into a plugin that is
// installed but not enabled returns ErrNotEnabled without any native call.
func (m *Manager) ExecuteTool(id string, call api.ToolCall) (api.ToolResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireLoaded(id); err != nil {
		return api.ToolResult{}, err
	}

	if m.validateArgs {
		if res, rejected := m.checkArguments(id, call); rejected {
			return res, nil
		}
	}

	res, err := m.loader.ExecuteTool(id, call)
	if err != nil {
		return api.ToolResult{}, err
	}
	if !res.Success {
		m.logger.Debug("tool failed",
			zap.String("plugin", id),
			zap.String("tool", call.Name),
			zap.String("error", res.Error))
	}
	return res, nil
}

// checkArguments validates call against the live tool schema. Tools the
// plugin does not list are passed through for the plugin to reject.
func (m *Manager) checkArguments(id string, call api.ToolCall) (api.ToolResult, bool) {
	tools, err := m.loader.GetTools(id)
	if err != nil {
		m.logger.Debug("skipping argument validation", zap.String("plugin", id), zap.Error(err))
		return api.ToolResult{}, false
	}
	for _, def := range tools {
		if def.Name != call.Name {
			continue
		}
		if err := def.ValidateArguments(call.Arguments); err != nil {
			return api.Failure(err.Error()), true
		}
		return api.ToolResult{}, false
	}
	return api.ToolResult{}, false
}

// TriggerHook broadcasts a hook to its subscribers in plugin id order and
// returns the non-null answers. It never fails as a whole; subscriber
// errors are logged and dropped.
func (m *Manager) TriggerHook(name string, data api.RawJSON) []api.HookResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return []api.HookResult{}
	}
	if !hook.Known(name) {
		m.logger.Debug("triggering hook outside the host vocabulary", zap.String("hook", name))
	}

	return hook.Broadcast(m.hooks.Listeners(name),
		func(id string) (api.RawJSON, error) {
			return m.loader.TriggerHook(id, name, data)
		},
		func(id string, err error) {
			m.logger.Warn("hook subscriber failed",
				zap.String("hook", name), zap.String("plugin", id), zap.Error(err))
		})
}

// Subscribers returns the plugin ids subscribed to a hook.
func (m *Manager) Subscribers(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hooks.Listeners(name)
}

// PluginHooks returns the hooks a plugin is currently subscribed to.
func (m *Manager) PluginHooks(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hooks.PluginHooks(id)
}

func (m *Manager) requireLoaded(id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if m.loader.IsLoaded(id) {
		return nil
	}
	if !m.registry.Exists(id) {
		return fmt.Errorf("plugin %q: %w", id, ErrPluginNotFound)
	}
	return fmt.Errorf("plugin %q: %w", id, ErrNotEnabled)
}
