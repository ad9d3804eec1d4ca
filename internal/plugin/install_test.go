package plugin

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/native"
	"github.com/tablefri/pluginhost/internal/plugin/native/nativetest"
)

func TestInstallRejectsBadPackages(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "no manifest",
			files: map[string]string{"bad.so": "x"},
		},
		{
			name: "two manifests",
			files: map[string]string{
				"a/manifest.json": manifestJSON("a"),
				"b/manifest.json": manifestJSON("b"),
				"a/a.so":          "x",
			},
		},
		{
			name: "path traversal",
			files: map[string]string{
				api.ManifestFile: manifestJSON("slip"),
				"slip.so":        "x",
				"../evil.so":     "x",
			},
		},
		{
			name: "invalid manifest",
			files: map[string]string{
				api.ManifestFile: `{"id":"noversion","name":"n","main":"noversion.so"}`,
				"noversion.so":   "x",
			},
		},
		{
			name: "manifest is not json",
			files: map[string]string{
				api.ManifestFile: `id = "toml"`,
				"toml.so":        "x",
			},
		},
		{
			name:  "missing module",
			files: map[string]string{api.ManifestFile: manifestJSON("nomod")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.mgr.Install(writePackage(t, tt.files))
			assert.ErrorIs(t, err, ErrInvalidPackage)
			assert.Empty(t, h.mgr.List())
			assertNoStaging(t, h.root)
			assert.NoFileExists(t, filepath.Join(filepath.Dir(h.root), "evil.so"))
		})
	}
}

func TestInstallRejectsNonZip(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "plugin.zip")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a zip"), 0o644))

	_, err := h.mgr.Install(path)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	_, err = h.mgr.Install(filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestInstallNestedRoot(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := newHarness(t, WithLogger(zap.New(core)))
	pkg := writePackage(t, map[string]string{
		"nested-1.0/manifest.json":   manifestJSON("nested"),
		"nested-1.0/nested.so":       "module",
		"nested-1.0/ui/panel.html":   "<p>panel</p>",
		"nested-1.0/lib/helper.so":   "helper",
		"README.md":                  "outside the package root",
		"other/ignored.txt":          "also outside",
		"nested-1.0/docs/readme.txt": "inside",
	})

	info, err := h.mgr.Install(pkg)
	require.NoError(t, err)
	assert.Equal(t, "nested", info.ID)
	assert.False(t, info.Enabled)

	dir := filepath.Join(h.root, "nested")
	assert.Equal(t, dir, info.Dir)
	assert.FileExists(t, filepath.Join(dir, api.ManifestFile))
	assert.FileExists(t, filepath.Join(dir, "ui", "panel.html"))
	assert.FileExists(t, filepath.Join(dir, "docs", "readme.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "README.md"))
	assert.NoDirExists(t, filepath.Join(dir, "other"))
	assertNoStaging(t, h.root)

	skipped := logs.FilterMessage("skipping entry outside package root").All()
	require.Len(t, skipped, 2)
	var names []string
	for _, entry := range skipped {
		names = append(names, entry.ContextMap()["entry"].(string))
	}
	assert.ElementsMatch(t, []string{"README.md", "other/ignored.txt"}, names)

	if runtime.GOOS != "windows" {
		for _, rel := range []string{"nested.so", filepath.Join("lib", "helper.so")} {
			st, err := os.Stat(filepath.Join(dir, rel))
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o755), st.Mode().Perm(), rel)
		}
		st, err := os.Stat(filepath.Join(dir, "docs", "readme.txt"))
		require.NoError(t, err)
		assert.Zero(t, st.Mode().Perm()&0o111)
	}
}

func TestInstallReplacesExistingPlugin(t *testing.T) {
	h := newHarness(t)
	old := h.plugin("swap", &nativetest.Plugin{})
	h.install("swap")
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "swap", "stale.txt"), []byte("old"), 0o644))
	require.NoError(t, h.mgr.Enable("swap"))

	manifest := strings.Replace(manifestJSON("swap"), `"1.0.0"`, `"2.0.0"`, 1)
	info, err := h.mgr.Install(writePackage(t, map[string]string{
		api.ManifestFile: manifest,
		"swap.so":        "new module",
	}))
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", info.Version)
	assert.False(t, info.Enabled)
	assert.False(t, h.mgr.IsEnabled("swap"))
	assert.Equal(t, 1, old.Calls(native.SymShutdown))
	assert.Zero(t, old.OpenHandles())
	assert.NoFileExists(t, filepath.Join(h.root, "swap", "stale.txt"))
	require.Len(t, h.mgr.List(), 1)
	h.assertConsistent()
}

func TestInstallRefusesAnotherPluginsDirectory(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(h.root, "foo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, api.ManifestFile), []byte(manifestJSON("bar")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bar.so"), []byte("module"), 0o644))
	bar := h.opener.Add(filepath.Join(dir, "bar.so"), &nativetest.Plugin{})
	require.NoError(t, h.mgr.Refresh())
	require.NoError(t, h.mgr.Enable("bar"))

	_, err := h.mgr.Install(writePackage(t, map[string]string{
		api.ManifestFile: manifestJSON("foo"),
		"foo.so":         "module",
	}))
	require.ErrorIs(t, err, ErrPluginExists)
	assert.Contains(t, err.Error(), `"bar"`)

	assert.FileExists(t, filepath.Join(dir, "bar.so"))
	man, err := api.LoadManifestFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "bar", man.ID)

	info, err := h.mgr.Get("bar")
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, dir, info.Dir)
	assert.True(t, h.mgr.IsEnabled("bar"))
	assert.Zero(t, bar.Calls(native.SymShutdown))
	_, err = h.mgr.Get("foo")
	assert.ErrorIs(t, err, ErrPluginNotFound)
	assertNoStaging(t, h.root)

	require.NoError(t, h.mgr.Refresh())
	_, err = h.mgr.Get("bar")
	assert.NoError(t, err)
	h.assertConsistent()
}

func TestInstalledPluginSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	h.install("kept")
	require.NoError(t, h.mgr.Close())

	restarted := h.open()
	info, err := restarted.Get("kept")
	require.NoError(t, err)
	assert.Equal(t, "kept plugin", info.Name)
	assert.NotNil(t, info.UI)
}

func assertNoStaging(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), stagingPrefix), "leftover %s", e.Name())
	}
}
