package native

import "fmt"

// Entry point symbol names.
const (
	SymInitialize   = "plugin_initialize"
	SymShutdown     = "plugin_shutdown"
	SymGetTools     = "plugin_get_tools"
	SymExecuteTool  = "plugin_execute_tool"
	SymOnHook       = "plugin_on_hook"
	SymFreeString   = "plugin_free_string"
	SymGetLastError = "plugin_get_last_error"
)

// Go signatures of the entry points. Returned strings are raw C pointers
// owned by the plugin; zero is null.
type (
	InitializeFunc   func(ctxJSON string) int32
	ShutdownFunc     func() int32
	GetToolsFunc     func() uintptr
	ExecuteToolFunc  func(callJSON string) uintptr
	OnHookFunc       func(hookName, dataJSON string) uintptr
	FreeStringFunc   func(s uintptr)
	GetLastErrorFunc func() uintptr
)

// Module is an opened native library.
type Module interface {
	// Bind resolves symbol and stores a callable for it into fnPtr, which
	// must point to a variable of one of the entry point function types.
	Bind(symbol string, fnPtr any) error

	// Close releases the library handle.
	Close() error
}

// Opener opens native libraries.
type Opener interface {
	Open(path string) (Module, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Module, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Module, error) {
	return f(path)
}

// entryPoints holds the seven bound functions of a loaded module.
type entryPoints struct {
	initialize  InitializeFunc
	shutdown    ShutdownFunc
	getTools    GetToolsFunc
	executeTool ExecuteToolFunc
	onHook      OnHookFunc
	freeString  FreeStringFunc
	lastError   GetLastErrorFunc
}

// bind resolves every entry point. It stops at the first missing symbol.
func (ep *entryPoints) bind(m Module) error {
	targets := []struct {
		name string
		fn   any
	}{
		{SymInitialize, &ep.initialize},
		{SymShutdown, &ep.shutdown},
		{SymGetTools, &ep.getTools},
		{SymExecuteTool, &ep.executeTool},
		{SymOnHook, &ep.onHook},
		{SymFreeString, &ep.freeString},
		{SymGetLastError, &ep.lastError},
	}
	for _, t := range targets {
		if err := m.Bind(t.name, t.fn); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSymbolNotFound, t.name, err)
		}
	}
	return nil
}
