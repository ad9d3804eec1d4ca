package native_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/native"
	"github.com/tablefri/pluginhost/internal/plugin/native/nativetest"
)

func setup(t *testing.T, p *nativetest.Plugin) (*native.Loader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libfake.so")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o755))
	opener := nativetest.NewOpener()
	opener.Add(path, p)
	return native.NewLoader(native.WithOpener(opener)), path
}

func TestLoadUnload(t *testing.T) {
	p := &nativetest.Plugin{}
	l, path := setup(t, p)

	require.NoError(t, l.Load("fake", path))
	assert.True(t, l.IsLoaded("fake"))
	assert.Equal(t, []string{"fake"}, l.Loaded())
	assert.Equal(t, 1, p.OpenHandles())

	err := l.Load("fake", path)
	assert.ErrorIs(t, err, native.ErrAlreadyLoaded)
	assert.Equal(t, 1, p.OpenHandles())

	require.NoError(t, l.Unload("fake"))
	assert.False(t, l.IsLoaded("fake"))
	assert.Equal(t, 0, p.OpenHandles())
	assert.Zero(t, p.Calls(native.SymShutdown), "unload must not call shutdown")

	assert.ErrorIs(t, l.Unload("fake"), native.ErrNotLoaded)
}

func TestLoadMissingFile(t *testing.T) {
	l := native.NewLoader(native.WithOpener(nativetest.NewOpener()))
	err := l.Load("ghost", filepath.Join(t.TempDir(), "nope.so"))
	assert.ErrorIs(t, err, native.ErrOpen)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, l.Loaded())
}

func TestLoadMissingSymbol(t *testing.T) {
	p := &nativetest.Plugin{Missing: []string{native.SymOnHook}}
	l, path := setup(t, p)

	err := l.Load("partial", path)
	assert.ErrorIs(t, err, native.ErrSymbolNotFound)
	assert.Contains(t, err.Error(), native.SymOnHook)
	assert.False(t, l.IsLoaded("partial"))
	assert.Equal(t, 0, p.OpenHandles(), "handle must be released")
}

func TestInitialize(t *testing.T) {
	p := &nativetest.Plugin{}
	l, path := setup(t, p)
	require.NoError(t, l.Load("fake", path))

	err := l.Initialize("fake", api.PluginContext{PluginID: "fake", DataDir: "/data", Config: api.RawJSON(`{"k":1}`)})
	require.NoError(t, err)

	ctxs := p.Contexts()
	require.Len(t, ctxs, 1)
	assert.Equal(t, "fake", ctxs[0].PluginID)
	assert.Equal(t, "/data", ctxs[0].DataDir)
	assert.JSONEq(t, `{"k":1}`, string(ctxs[0].Config))

	assert.ErrorIs(t, l.Initialize("other", api.PluginContext{}), native.ErrNotLoaded)
}

func TestInitializeFailureMessages(t *testing.T) {
	t.Run("plugin message", func(t *testing.T) {
		p := &nativetest.Plugin{InitializeErr: errors.New("config missing key")}
		l, path := setup(t, p)
		require.NoError(t, l.Load("fake", path))

		err := l.Initialize("fake", api.PluginContext{PluginID: "fake"})
		assert.ErrorIs(t, err, native.ErrInitializeFailed)
		assert.Contains(t, err.Error(), "config missing key")
		assert.Zero(t, p.Outstanding())
		assert.Equal(t, 1, p.Released())
	})

	t.Run("status code fallback", func(t *testing.T) {
		p := &nativetest.Plugin{InitializeErr: errors.New("")}
		l, path := setup(t, p)
		require.NoError(t, l.Load("fake", path))

		err := l.Initialize("fake", api.PluginContext{PluginID: "fake"})
		assert.ErrorIs(t, err, native.ErrInitializeFailed)
		assert.Contains(t, err.Error(), "unknown error (code 1)")
		assert.Zero(t, p.Released(), "null must never be freed")
	})
}

func TestShutdownFailure(t *testing.T) {
	p := &nativetest.Plugin{ShutdownErr: errors.New("busy")}
	l, path := setup(t, p)
	require.NoError(t, l.Load("fake", path))

	err := l.Shutdown("fake")
	assert.ErrorIs(t, err, native.ErrShutdownFailed)
	assert.Contains(t, err.Error(), "busy")
}

func TestGetTools(t *testing.T) {
	p := &nativetest.Plugin{}
	l, path := setup(t, p)
	require.NoError(t, l.Load("fake", path))

	tools, err := l.GetTools("fake")
	require.NoError(t, err)
	assert.Empty(t, tools)

	p.Tools = []api.ToolDefinition{{Name: "hello", Description: "says hello", PluginID: "spoofed"}}
	tools, err = l.GetTools("fake")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "hello", tools[0].Name)
	assert.Equal(t, "fake", tools[0].PluginID)

	p.RawTools = `[{"name":`
	_, err = l.GetTools("fake")
	assert.ErrorIs(t, err, native.ErrMalformedResult)

	assert.Zero(t, p.Outstanding())
	assert.Zero(t, p.InvalidFrees())
}

func TestExecuteTool(t *testing.T) {
	p := &nativetest.Plugin{}
	l, path := setup(t, p)
	require.NoError(t, l.Load("fake", path))

	res, err := l.ExecuteTool("fake", api.ToolCall{Name: "hello"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, api.ErrNoData, res.Error)

	p.Execute = func(call api.ToolCall) *string {
		return nativetest.JSON(api.Success(call.Arguments))
	}
	res, err = l.ExecuteTool("fake", api.ToolCall{Name: "hello", Arguments: api.RawJSON(`{"x":1}`)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.JSONEq(t, `{"x":1}`, string(res.Data))

	p.Execute = func(api.ToolCall) *string {
		return nativetest.String(`{"success":true,"error":"half done"}`)
	}
	res, err = l.ExecuteTool("fake", api.ToolCall{Name: "hello"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "half done", res.Error)

	p.Execute = func(api.ToolCall) *string { return nativetest.String("not json") }
	_, err = l.ExecuteTool("fake", api.ToolCall{Name: "hello"})
	assert.ErrorIs(t, err, native.ErrMalformedResult)

	_, err = l.ExecuteTool("fake", api.ToolCall{Name: "hello", Arguments: api.RawJSON(`{`)})
	assert.ErrorIs(t, err, native.ErrInvalidJSON)

	assert.Equal(t, 4, p.Calls(native.SymExecuteTool))
	assert.Zero(t, p.Outstanding())
	assert.Equal(t, 3, p.Released())
	assert.Zero(t, p.InvalidFrees())
}

func TestTriggerHook(t *testing.T) {
	p := &nativetest.Plugin{}
	l, path := setup(t, p)
	require.NoError(t, l.Load("fake", path))

	out, err := l.TriggerHook("fake", "app-started", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	p.Hook = func(name string, data api.RawJSON) *string {
		return nativetest.JSON(map[string]any{"hook": name, "data": data})
	}
	out, err = l.TriggerHook("fake", "file-opened", api.RawJSON(`{"path":"/a.txt"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"hook":"file-opened","data":{"path":"/a.txt"}}`, string(out))

	p.Hook = func(string, api.RawJSON) *string { return nativetest.String("null") }
	out, err = l.TriggerHook("fake", "file-opened", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = l.TriggerHook("fake", "bad\x00name", nil)
	assert.ErrorIs(t, err, native.ErrInteriorNUL)

	assert.Equal(t, []string{"app-started", "file-opened", "file-opened"}, p.HooksReceived())
	assert.Zero(t, p.Outstanding())
}

func TestClose(t *testing.T) {
	a := &nativetest.Plugin{}
	b := &nativetest.Plugin{ShutdownErr: errors.New("refuse")}
	dir := t.TempDir()
	opener := nativetest.NewOpener()
	for name, p := range map[string]*nativetest.Plugin{"a.so": a, "b.so": b} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0o755))
		opener.Add(path, p)
	}
	l := native.NewLoader(native.WithOpener(opener))
	require.NoError(t, l.Load("a", filepath.Join(dir, "a.so")))
	require.NoError(t, l.Load("b", filepath.Join(dir, "b.so")))

	l.Close()

	assert.Empty(t, l.Loaded())
	for _, p := range []*nativetest.Plugin{a, b} {
		assert.Equal(t, 1, p.Calls(native.SymShutdown))
		assert.Equal(t, 0, p.OpenHandles())
	}
}
