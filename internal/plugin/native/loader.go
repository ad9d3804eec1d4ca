package native

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// Loader owns the loaded plugin modules, keyed by plugin id.
type Loader struct {
	opener  Opener
	logger  *zap.Logger
	plugins map[string]*loadedPlugin
}

// loadedPlugin is a module handle plus its bound entry points. A plugin is
// always shut down before its handle is released.
type loadedPlugin struct {
	id     string
	path   string
	module Module
	ep     entryPoints
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOpener sets the module opener. The default opens real shared libraries.
func WithOpener(o Opener) LoaderOption {
	return func(l *Loader) {
		l.opener = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates an empty loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		opener:  SystemOpener(),
		logger:  zap.NewNop(),
		plugins: make(map[string]*loadedPlugin),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load opens the module at path and binds all entry points. On any failure
// nothing stays loaded and the handle is released.
func (l *Loader) Load(id, path string) error {
	if _, ok := l.plugins[id]; ok {
		return fmt.Errorf("plugin %q: %w", id, ErrAlreadyLoaded)
	}

	m, err := l.opener.Open(path)
	if err != nil {
		return fmt.Errorf("plugin %q: %w: %w", id, ErrOpen, err)
	}

	p := &loadedPlugin{id: id, path: path, module: m}
	if err := p.ep.bind(m); err != nil {
		if cerr := m.Close(); cerr != nil {
			l.logger.Warn("release module after failed bind", zap.String("plugin", id), zap.Error(cerr))
		}
		return fmt.Errorf("plugin %q: %w", id, err)
	}

	l.plugins[id] = p
	l.logger.Debug("module loaded", zap.String("plugin", id), zap.String("path", path))
	return nil
}

// Unload releases the module handle. It does not call shutdown.
func (l *Loader) Unload(id string) error {
	p, err := l.get(id)
	if err != nil {
		return err
	}
	delete(l.plugins, id)
	if err := p.module.Close(); err != nil {
		return fmt.Errorf("plugin %q: release module: %w", id, err)
	}
	l.logger.Debug("module unloaded", zap.String("plugin", id))
	return nil
}

// IsLoaded reports whether id is loaded.
func (l *Loader) IsLoaded(id string) bool {
	_, ok := l.plugins[id]
	return ok
}

// Loaded returns the loaded ids in sorted order.
func (l *Loader) Loaded() []string {
	ids := make([]string, 0, len(l.plugins))
	for id := range l.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Initialize calls plugin_initialize with the serialized context.
func (l *Loader) Initialize(id string, ctx api.PluginContext) error {
	p, err := l.get(id)
	if err != nil {
		return err
	}
	ctx.Config = api.OrNull(ctx.Config)
	data, err := api.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("plugin %q: encode context: %w", id, err)
	}
	if err := checkCString(string(data)); err != nil {
		return fmt.Errorf("plugin %q: %w", id, err)
	}
	if rc := p.ep.initialize(string(data)); rc != 0 {
		return fmt.Errorf("plugin %q: %w: %s", id, ErrInitializeFailed, p.lastError(rc))
	}
	return nil
}

// Shutdown calls plugin_shutdown.
func (l *Loader) Shutdown(id string) error {
	p, err := l.get(id)
	if err != nil {
		return err
	}
	if rc := p.ep.shutdown(); rc != 0 {
		return fmt.Errorf("plugin %q: %w: %s", id, ErrShutdownFailed, p.lastError(rc))
	}
	return nil
}

// GetTools returns the tools the live plugin currently exposes, stamped
// with its id. A null answer is an empty list.
func (l *Loader) GetTools(id string) ([]api.ToolDefinition, error) {
	p, err := l.get(id)
	if err != nil {
		return nil, err
	}
	s := own(p.ep.getTools(), p.ep.freeString)
	if s.IsNull() {
		return []api.ToolDefinition{}, nil
	}
	text := s.Take()

	var tools []api.ToolDefinition
	if err := api.Unmarshal([]byte(text), &tools); err != nil {
		return nil, fmt.Errorf("plugin %q: get_tools: %w: %v", id, ErrMalformedResult, err)
	}
	if tools == nil {
		tools = []api.ToolDefinition{}
	}
	for i := range tools {
		tools[i].PluginID = id
	}
	return tools, nil
}

// ExecuteTool runs a tool. A null answer becomes a failed result; a result
// that reports success alongside an error message is normalized to failure.
func (l *Loader) ExecuteTool(id string, call api.ToolCall) (api.ToolResult, error) {
	p, err := l.get(id)
	if err != nil {
		return api.ToolResult{}, err
	}
	call.Arguments = api.OrNull(call.Arguments)
	if !api.Valid(call.Arguments) {
		return api.ToolResult{}, fmt.Errorf("plugin %q: tool %q: %w", id, call.Name, ErrInvalidJSON)
	}
	data, err := api.Marshal(call)
	if err != nil {
		return api.ToolResult{}, fmt.Errorf("plugin %q: encode tool call: %w", id, err)
	}
	if err := checkCString(string(data)); err != nil {
		return api.ToolResult{}, fmt.Errorf("plugin %q: %w", id, err)
	}

	s := own(p.ep.executeTool(string(data)), p.ep.freeString)
	if s.IsNull() {
		return api.Failure(api.ErrNoData), nil
	}
	text := s.Take()

	var result api.ToolResult
	if err := api.Unmarshal([]byte(text), &result); err != nil {
		return api.ToolResult{}, fmt.Errorf("plugin %q: tool %q: %w: %v", id, call.Name, ErrMalformedResult, err)
	}
	return result.Normalize(), nil
}

// TriggerHook delivers a hook to one plugin. It returns nil data when the
// plugin has nothing to say.
func (l *Loader) TriggerHook(id, hookName string, data api.RawJSON) (api.RawJSON, error) {
	p, err := l.get(id)
	if err != nil {
		return nil, err
	}
	data = api.OrNull(data)
	if !api.Valid(data) {
		return nil, fmt.Errorf("plugin %q: hook %q: %w", id, hookName, ErrInvalidJSON)
	}
	if err := checkCString(hookName, string(data)); err != nil {
		return nil, fmt.Errorf("plugin %q: %w", id, err)
	}

	s := own(p.ep.onHook(hookName, string(data)), p.ep.freeString)
	if s.IsNull() {
		return nil, nil
	}
	text := s.Take()
	if !api.Valid([]byte(text)) {
		return nil, fmt.Errorf("plugin %q: hook %q: %w", id, hookName, ErrMalformedResult)
	}
	out := api.RawJSON(text)
	if api.IsNull(out) {
		return nil, nil
	}
	return out, nil
}

// Close shuts down and releases every module still loaded. Errors are logged.
func (l *Loader) Close() {
	for _, id := range l.Loaded() {
		if err := l.Shutdown(id); err != nil {
			l.logger.Warn("shutdown on close", zap.String("plugin", id), zap.Error(err))
		}
		if err := l.Unload(id); err != nil {
			l.logger.Warn("unload on close", zap.String("plugin", id), zap.Error(err))
		}
	}
}

func (l *Loader) get(id string) (*loadedPlugin, error) {
	p, ok := l.plugins[id]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotLoaded)
	}
	return p, nil
}

// lastError fetches the plugin's error message for a failed status code.
func (p *loadedPlugin) lastError(code int32) string {
	s := own(p.ep.lastError(), p.ep.freeString)
	if msg := s.Take(); msg != "" {
		return msg
	}
	return fmt.Sprintf("unknown error (code %d)", code)
}
