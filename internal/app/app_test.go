package app

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablefri/pluginhost/internal/config"
	"github.com/tablefri/pluginhost/internal/plugin/api"
	"github.com/tablefri/pluginhost/internal/plugin/hook"
	"github.com/tablefri/pluginhost/internal/plugin/native/nativetest"
)

type testEnv struct {
	pluginsDir string
	configPath string
	opener     *nativetest.Opener
	logs       *bytes.Buffer
}

func newTestEnv(t *testing.T, watch bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		pluginsDir: filepath.Join(dir, "plugins"),
		configPath: filepath.Join(dir, config.FileName),
		opener:     nativetest.NewOpener(),
		logs:       &bytes.Buffer{},
	}
	content := fmt.Sprintf("[plugins]\ndir = 'plugins'\n\n[logging]\nlevel = 'debug'\nformat = 'json'\n\n[watcher]\nenabled = %t\ndebounce = '50ms'\n", watch)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

func (e *testEnv) start(t *testing.T) *Application {
	t.Helper()
	app, err := New(Options{ConfigPath: e.configPath, LogOutput: e.logs, Opener: e.opener})
	require.NoError(t, err)
	t.Cleanup(func() { app.Shutdown() })
	return app
}

func (e *testEnv) writePackage(t *testing.T, id string, hooks ...string) string {
	t.Helper()
	hooksJSON, err := api.Marshal(hooks)
	require.NoError(t, err)
	manifest := fmt.Sprintf(`{"id":%q,"name":"%s","version":"1.0.0","author":"tests","description":"d","main":"%s.so","hooks":%s}`,
		id, id, id, hooksJSON)

	path := filepath.Join(t.TempDir(), id+".zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{api.ManifestFile: manifest, id + ".so": "module"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestNewResolvesConfiguration(t *testing.T) {
	env := newTestEnv(t, false)
	app := env.start(t)

	assert.Equal(t, env.pluginsDir, app.Config().Plugins.Dir)
	assert.Equal(t, env.pluginsDir, app.Plugins().PluginsDir())
	assert.DirExists(t, env.pluginsDir)
	assert.NotNil(t, app.Logger())
	assert.Empty(t, app.Tools().Tools())
}

func TestNewOverrides(t *testing.T) {
	env := newTestEnv(t, false)
	other := t.TempDir()

	app, err := New(Options{ConfigPath: env.configPath, PluginsDir: other, LogLevel: "warn", LogOutput: env.logs})
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Equal(t, other, app.Config().Plugins.Dir)
	assert.Equal(t, "warn", app.Config().Logging.Level)
}

func TestNewFailures(t *testing.T) {
	_, err := New(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")})
	var ierr *InitError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "config", ierr.Component)
	assert.ErrorIs(t, err, config.ErrFileNotFound)

	env := newTestEnv(t, false)
	_, err = New(Options{ConfigPath: env.configPath, LogLevel: "loud", LogOutput: env.logs})
	require.ErrorAs(t, err, &ierr)
	assert.ErrorIs(t, err, config.ErrValidationFailed)
}

func TestToolCatalogFollowsLifecycle(t *testing.T) {
	env := newTestEnv(t, false)
	app := env.start(t)
	env.opener.Add(filepath.Join(env.pluginsDir, "echo", "echo.so"), &nativetest.Plugin{
		Tools: []api.ToolDefinition{{Name: "hello"}},
	})

	_, err := app.Plugins().Install(env.writePackage(t, "echo"))
	require.NoError(t, err)
	assert.Empty(t, app.Tools().Tools())

	require.NoError(t, app.Plugins().Enable("echo"))
	tools := app.Tools().Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "echo__hello", tools[0].Name)

	require.NoError(t, app.Plugins().Disable("echo"))
	assert.Empty(t, app.Tools().Tools())
	assert.Contains(t, env.logs.String(), "plugin event")
}

func TestRunBroadcastsLifecycleHooks(t *testing.T) {
	env := newTestEnv(t, false)
	app := env.start(t)
	p := env.opener.Add(filepath.Join(env.pluginsDir, "greeter", "greeter.so"), &nativetest.Plugin{})

	_, err := app.Plugins().Install(env.writePackage(t, "greeter", hook.AppStarted, hook.AppClosing))
	require.NoError(t, err)
	require.NoError(t, app.Plugins().Enable("greeter"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return len(p.HooksReceived()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, app.Run(ctx), ErrAlreadyRunning)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{hook.AppStarted, hook.AppClosing}, p.HooksReceived())

	require.NoError(t, app.Shutdown())
	require.NoError(t, app.Shutdown())
	assert.Zero(t, p.OpenHandles())
	assert.ErrorIs(t, app.Run(context.Background()), ErrShutdown)
}

func TestRunWatchesPluginsRoot(t *testing.T) {
	env := newTestEnv(t, true)
	app := env.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to start before changing the root.
	time.Sleep(100 * time.Millisecond)
	staging := filepath.Join(env.pluginsDir, ".dropped")
	require.NoError(t, os.Mkdir(staging, 0o755))
	manifest := `{"id":"dropped","name":"Dropped","version":"1.0.0","author":"a","description":"d","main":"dropped.so"}`
	require.NoError(t, os.WriteFile(filepath.Join(staging, api.ManifestFile), []byte(manifest), 0o644))
	require.NoError(t, os.Rename(staging, filepath.Join(env.pluginsDir, "dropped")))

	assert.Eventually(t, func() bool {
		_, err := app.Plugins().Get("dropped")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}
