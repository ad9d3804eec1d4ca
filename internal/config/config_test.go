package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.Plugins.Dir))
	assert.Equal(t, "plugins", filepath.Base(cfg.Plugins.Dir))
	assert.False(t, cfg.Plugins.ValidateArguments)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 10, cfg.Logging.MaxSize)
	assert.True(t, cfg.Watcher.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.Interval())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[plugins]
dir = "my-plugins"
validateArguments = true

[logging]
level = "debug"
format = "json"

[watcher]
enabled = false
debounce = "2s"
`)

	cfg, err := load(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "my-plugins"), cfg.Plugins.Dir)
	assert.True(t, cfg.Plugins.ValidateArguments)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 3, cfg.Logging.MaxBackups, "defaults survive a partial section")
	assert.False(t, cfg.Watcher.Enabled, "explicit false is not overwritten by defaults")
	assert.Equal(t, 2*time.Second, cfg.Watcher.Interval())
}

func TestLoadAbsolutePluginsDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "[plugins]\ndir = '"+dir+"'\n")

	cfg, err := load(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Plugins.Dir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.toml"), noEnv)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadParseError(t *testing.T) {
	path := writeConfig(t, "[plugins]\ndir = \n")

	_, err := load(path, noEnv)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
	assert.Positive(t, perr.Line)
	assert.Contains(t, perr.Error(), "parse error in")
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeConfig(t, "[plugins]\ndirectory = \"x\"\n")

	_, err := load(path, noEnv)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		setting string
	}{
		{"bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"bad format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"bad size", "[logging]\nmaxSize = -1\n", "logging.maxSize"},
		{"bad debounce", "[watcher]\ndebounce = \"soon\"\n", "watcher.debounce"},
		{"zero debounce", "[watcher]\ndebounce = \"0s\"\n", "watcher.debounce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeConfig(t, tt.content), noEnv)
			require.ErrorIs(t, err, ErrValidationFailed)
			assert.Contains(t, err.Error(), tt.setting)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"warn\"\n")
	pluginsDir := t.TempDir()

	cfg, err := load(path, envOf(map[string]string{
		"PLUGINHOST_PLUGINS_DIR":        pluginsDir,
		"PLUGINHOST_VALIDATE_ARGUMENTS": "yes",
		"PLUGINHOST_LOG_LEVEL":          "DEBUG",
		"PLUGINHOST_LOG_COLOR":          "1",
		"PLUGINHOST_WATCH":              "off",
		"PLUGINHOST_WATCH_DEBOUNCE":     "250ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, pluginsDir, cfg.Plugins.Dir)
	assert.True(t, cfg.Plugins.ValidateArguments)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Color)
	assert.False(t, cfg.Watcher.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Watcher.Interval())
}

func TestEnvInvalidBool(t *testing.T) {
	_, err := load(writeConfig(t, ""), envOf(map[string]string{"PLUGINHOST_WATCH": "maybe"}))
	assert.ErrorIs(t, err, ErrInvalidEnv)
	assert.Contains(t, err.Error(), "PLUGINHOST_WATCH")
}

func TestEnvVars(t *testing.T) {
	vars := EnvVars()
	assert.Contains(t, vars, "PLUGINHOST_PLUGINS_DIR")
	assert.IsIncreasing(t, vars)
}

func TestString(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	out := cfg.String()
	assert.Contains(t, out, "[plugins]")
	assert.Contains(t, out, "500ms")
}

func TestSettingPath(t *testing.T) {
	assert.Equal(t, "logging.maxSize", settingPath("Config.Logging.MaxSize"))
	assert.Equal(t, "plugins.dir", settingPath("Config.Plugins.Dir"))
}
