// Package nativetest provides in-memory plugin modules that implement the
// native entry point contract, for tests that must not depend on compiled
// shared libraries.
//
// Strings handed to the host live in Go memory, are NUL terminated, and are
// tracked until the host gives them back through plugin_free_string, so
// tests can assert that every returned string is released exactly once.
package nativetest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"
	"unsafe"

	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/native"
)

// Plugin is a scriptable fake plugin. The zero value initializes and shuts
// down successfully, exposes no tools and answers every call with null.
type Plugin struct {
	// Missing lists entry point symbols the module does not export.
	Missing []string

	// InitializeErr, when set, makes plugin_initialize fail with status 1.
	// An empty message leaves plugin_get_last_error returning null.
	InitializeErr error

	// ShutdownErr, when set, makes plugin_shutdown fail with status 1.
	ShutdownErr error

	// Tools is returned by plugin_get_tools; nil answers null.
	Tools []api.ToolDefinition

	// RawTools, when non-empty, is returned verbatim by plugin_get_tools.
	RawTools string

	// Execute answers plugin_execute_tool. A nil return answers null.
	Execute func(call api.ToolCall) *string

	// Hook answers plugin_on_hook. A nil return answers null.
	Hook func(name string, data api.RawJSON) *string

	mu       sync.Mutex
	calls    map[string]int
	live     map[uintptr][]byte
	released int
	invalid  int
	handles  int
	lastErr  string
	contexts []api.PluginContext
	hooks    []string
}

// String returns a pointer to s, for use as an Execute or Hook answer.
func String(s string) *string {
	return &s
}

// JSON marshals v for use as an Execute or Hook answer.
func JSON(v any) *string {
	data, err := api.Marshal(v)
	if err != nil {
		panic(err)
	}
	s := string(data)
	return &s
}

// Calls returns how often the given entry point was invoked.
func (p *Plugin) Calls(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

// Outstanding returns the number of strings handed out and not yet freed.
func (p *Plugin) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Released returns the number of strings freed by the host.
func (p *Plugin) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// InvalidFrees returns the number of free calls with pointers the plugin
// did not hand out or had already reclaimed.
func (p *Plugin) InvalidFrees() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalid
}

// OpenHandles returns how many module handles are currently open.
func (p *Plugin) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles
}

// Contexts returns every context received by plugin_initialize.
func (p *Plugin) Contexts() []api.PluginContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.contexts)
}

// HooksReceived returns the hook names delivered to the plugin, in order.
func (p *Plugin) HooksReceived() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.hooks)
}

func (p *Plugin) count(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[symbol]++
}

func (p *Plugin) alloc(s *string) uintptr {
	if s == nil {
		return 0
	}
	buf := append([]byte(*s), 0)
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live == nil {
		p.live = make(map[uintptr][]byte)
	}
	p.live[ptr] = buf
	return ptr
}

func (p *Plugin) initialize(ctxJSON string) int32 {
	p.count(native.SymInitialize)
	var ctx api.PluginContext
	if err := api.Unmarshal([]byte(ctxJSON), &ctx); err != nil {
		p.setLastError("bad context: " + err.Error())
		return 2
	}
	p.mu.Lock()
	p.contexts = append(p.contexts, ctx)
	p.mu.Unlock()
	if p.InitializeErr != nil {
		p.setLastError(p.InitializeErr.Error())
		return 1
	}
	return 0
}

func (p *Plugin) shutdown() int32 {
	p.count(native.SymShutdown)
	if p.ShutdownErr != nil {
		p.setLastError(p.ShutdownErr.Error())
		return 1
	}
	return 0
}

func (p *Plugin) getTools() uintptr {
	p.count(native.SymGetTools)
	if p.RawTools != "" {
		return p.alloc(String(p.RawTools))
	}
	if p.Tools == nil {
		return 0
	}
	return p.alloc(JSON(p.Tools))
}

func (p *Plugin) executeTool(callJSON string) uintptr {
	p.count(native.SymExecuteTool)
	if p.Execute == nil {
		return 0
	}
	var call api.ToolCall
	if err := api.Unmarshal([]byte(callJSON), &call); err != nil {
		return p.alloc(JSON(api.Failure(err.Error())))
	}
	return p.alloc(p.Execute(call))
}

func (p *Plugin) onHook(name, dataJSON string) uintptr {
	p.count(native.SymOnHook)
	p.mu.Lock()
	p.hooks = append(p.hooks, name)
	p.mu.Unlock()
	if p.Hook == nil {
		return 0
	}
	return p.alloc(p.Hook(name, api.RawJSON(dataJSON)))
}

func (p *Plugin) freeString(ptr uintptr) {
	p.count(native.SymFreeString)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[ptr]; !ok {
		p.invalid++
		return
	}
	delete(p.live, ptr)
	p.released++
}

func (p *Plugin) getLastError() uintptr {
	p.count(native.SymGetLastError)
	p.mu.Lock()
	msg := p.lastErr
	p.lastErr = ""
	p.mu.Unlock()
	if msg == "" {
		return 0
	}
	return p.alloc(&msg)
}

func (p *Plugin) setLastError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = msg
}

// Opener serves fake plugins keyed by module path. It is safe for
// concurrent use.
type Opener struct {
	mu      sync.Mutex
	plugins map[string]*Plugin
}

// NewOpener returns an empty Opener.
func NewOpener() *Opener {
	return &Opener{plugins: make(map[string]*Plugin)}
}

// Add makes p available at path.
func (o *Opener) Add(path string, p *Plugin) *Plugin {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plugins[path] = p
	return p
}

// Open implements native.Opener. The file at path must exist on disk, as
// it would for a real shared library.
func (o *Opener) Open(path string) (native.Module, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	o.mu.Lock()
	p, ok := o.plugins[path]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: not a plugin module: %w", path, fs.ErrInvalid)
	}
	p.mu.Lock()
	p.handles++
	p.mu.Unlock()
	return &module{plugin: p}, nil
}

// ErrNoSymbol is returned by Bind for symbols listed in Plugin.Missing.
var ErrNoSymbol = errors.New("undefined symbol")

type module struct {
	plugin *Plugin
	closed bool
}

func (m *module) Bind(symbol string, fnPtr any) error {
	p := m.plugin
	if slices.Contains(p.Missing, symbol) {
		return fmt.Errorf("%w: %s", ErrNoSymbol, symbol)
	}
	switch fn := fnPtr.(type) {
	case *native.InitializeFunc:
		*fn = p.initialize
	case *native.ShutdownFunc:
		*fn = p.shutdown
	case *native.GetToolsFunc:
		*fn = p.getTools
	case *native.ExecuteToolFunc:
		*fn = p.executeTool
	case *native.OnHookFunc:
		*fn = p.onHook
	case *native.FreeStringFunc:
		*fn = p.freeString
	case *native.GetLastErrorFunc:
		*fn = p.getLastError
	default:
		return fmt.Errorf("%s: unexpected target %T", symbol, fnPtr)
	}
	return nil
}

func (m *module) Close() error {
	if m.closed {
		return errors.New("module already closed")
	}
	m.closed = true
	m.plugin.mu.Lock()
	m.plugin.handles--
	m.plugin.mu.Unlock()
	return nil
}
