package plugin

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/native/nativetest"
)

// harness owns a plugins root, a fake module opener and a Manager over them.
type harness struct {
	t      *testing.T
	root   string
	opener *nativetest.Opener
	mgr    *Manager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		root:   t.TempDir(),
		opener: nativetest.NewOpener(),
	}
	h.mgr = h.open(opts...)
	return h
}

// open creates a Manager over the harness root, as a restarted process would.
func (h *harness) open(opts ...Option) *Manager {
	h.t.Helper()
	opts = append([]Option{WithOpener(h.opener)}, opts...)
	mgr, err := NewManager(h.root, opts...)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { mgr.Close() })
	return mgr
}

// plugin binds a fake implementation to the module path id will install to.
func (h *harness) plugin(id string, p *nativetest.Plugin) *nativetest.Plugin {
	return h.opener.Add(filepath.Join(h.root, id, id+".so"), p)
}

// install packages and installs a plugin whose module is <id>.so.
func (h *harness) install(id string, hooks ...string) api.PluginInfo {
	h.t.Helper()
	pkg := writePackage(h.t, map[string]string{
		api.ManifestFile: manifestJSON(id, hooks...),
		id + ".so":       "fake module",
	})
	info, err := h.mgr.Install(pkg)
	require.NoError(h.t, err)
	return info
}

// assertConsistent checks that enabled in the registry matches loaded.
func (h *harness) assertConsistent() {
	h.t.Helper()
	for _, info := range h.mgr.List() {
		assert.Equal(h.t, info.Enabled, h.mgr.IsEnabled(info.ID), "plugin %s", info.ID)
	}
}

func manifestJSON(id string, hooks ...string) string {
	quoted := make([]string, len(hooks))
	for i, h := range hooks {
		quoted[i] = fmt.Sprintf("%q", h)
	}
	return fmt.Sprintf(`{
		"id": %q,
		"name": "%s plugin",
		"version": "1.0.0",
		"author": "tests",
		"description": "test plugin",
		"main": "%s.so",
		"hooks": [%s],
		"ui": {
			"panel": "ui/panel.html",
			"position": "sidebar",
			"windows": {"viewer": {"path": "ui/viewer.html", "width": 640, "title": "Viewer"}}
		}
	}`, id, id, id, strings.Join(quoted, ","))
}

// writePackage writes a zip archive with the given entries and returns its path.
func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

// echoPlugin exposes one tool, "hello", that answers a fixed payload.
func echoPlugin() *nativetest.Plugin {
	return &nativetest.Plugin{
		Tools: []api.ToolDefinition{{
			Name:        "hello",
			Description: "Says hello",
			Parameters:  api.RawJSON(`{"type":"object","properties":{"name":{"type":"string"}}}`),
		}},
		Execute: func(call api.ToolCall) *string {
			if call.Name != "hello" {
				return nativetest.JSON(api.Failure("unknown tool " + call.Name))
			}
			return nativetest.JSON(api.Success(api.RawJSON(`{"greeting":"hello"}`)))
		},
	}
}
