// Package config loads the plugin host configuration.
//
// Settings come from, in increasing priority: built-in defaults, a TOML
// file, and PLUGINHOST_* environment variables. The result is validated
// before it is returned.
//
//	[plugins]
//	dir = "~/.config/pluginhost/plugins"
//	validateArguments = true
//
//	[logging]
//	level = "debug"
//	file = "/var/log/pluginhost.log"
//
//	[watcher]
//	enabled = true
//	debounce = "500ms"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/tablefri/pluginhost/internal/logging"
)

// AppName names the per-user configuration directory.
const AppName = "pluginhost"

// FileName is the config file looked up in the user configuration directory.
const FileName = "config.toml"

// Config is the complete host configuration.
type Config struct {
	Plugins PluginsConfig  `toml:"plugins"`
	Logging logging.Config `toml:"logging"`
	Watcher WatcherConfig  `toml:"watcher"`
}

// PluginsConfig locates plugins and controls tool calls.
type PluginsConfig struct {
	// Dir is the plugins root. Relative paths in a config file are resolved
	// against the file's directory. Empty means <user config dir>/pluginhost/plugins.
	Dir string `toml:"dir" validate:"required"`

	// ValidateArguments checks tool arguments against their schema before
	// calling into a plugin.
	ValidateArguments bool `toml:"validateArguments"`
}

// WatcherConfig controls automatic refresh of the plugins root.
type WatcherConfig struct {
	Enabled  bool   `toml:"enabled" default:"true"`
	Debounce string `toml:"debounce" default:"500ms" validate:"duration"`
}

// Interval returns the parsed debounce duration.
func (w WatcherConfig) Interval() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 0
	}
	return d
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := cfg.resolve(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns <user config dir>/pluginhost/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, FileName), nil
}

// Load reads configuration from path, or from DefaultPath when path is
// empty. A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	baseDir := ""
	if path != "" {
		found, err := cfg.loadFile(path)
		if err != nil {
			return nil, err
		}
		if !found && explicit {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if found {
			baseDir = filepath.Dir(path)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.resolve(baseDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes path over cfg. It reports false when the file is absent.
func (c *Config) loadFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading config file %s: %w", path, err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		perr := &ParseError{Path: path, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return false, perr
	}
	return true, nil
}

// resolve fills the plugins dir and makes it absolute.
func (c *Config) resolve(baseDir string) error {
	dir := expandHome(c.Plugins.Dir)
	if dir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate plugins dir: %w", err)
		}
		dir = filepath.Join(userDir, AppName, "plugins")
	}
	if !filepath.IsAbs(dir) && baseDir != "" {
		dir = filepath.Join(baseDir, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve plugins dir: %w", err)
	}
	c.Plugins.Dir = abs
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s: %q does not satisfy %s", ErrValidationFailed,
			settingPath(fe.Namespace()), fmt.Sprint(fe.Value()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidationFailed, err)
}

// settingPath turns "Config.Logging.Level" into "logging.level".
func settingPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	data, err := toml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
