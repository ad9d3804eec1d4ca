package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLUGINHOST_"

// envSetter applies one environment value to the configuration.
type envSetter func(c *Config, value string) error

// envMapping maps environment variables to the settings they override.
var envMapping = map[string]envSetter{
	"PLUGINHOST_PLUGINS_DIR": func(c *Config, v string) error {
		c.Plugins.Dir = v
		return nil
	},
	"PLUGINHOST_VALIDATE_ARGUMENTS": boolSetter(func(c *Config) *bool { return &c.Plugins.ValidateArguments }),
	"PLUGINHOST_LOG_LEVEL": func(c *Config, v string) error {
		c.Logging.Level = strings.ToLower(v)
		return nil
	},
	"PLUGINHOST_LOG_FORMAT": func(c *Config, v string) error {
		c.Logging.Format = strings.ToLower(v)
		return nil
	},
	"PLUGINHOST_LOG_FILE": func(c *Config, v string) error {
		c.Logging.File = v
		return nil
	},
	"PLUGINHOST_LOG_COLOR": boolSetter(func(c *Config) *bool { return &c.Logging.Color }),
	"PLUGINHOST_WATCH":     boolSetter(func(c *Config) *bool { return &c.Watcher.Enabled }),
	"PLUGINHOST_WATCH_DEBOUNCE": func(c *Config, v string) error {
		c.Watcher.Debounce = v
		return nil
	},
}

// EnvVars returns the supported environment variables, sorted.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyEnv applies every set variable in envMapping.
// Note: Empty string values are treated as valid values, not as unset.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, name := range EnvVars() {
		val, ok := lookup(name)
		if !ok {
			continue
		}
		if err := envMapping[name](c, val); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidEnv, name, err)
		}
	}
	return nil
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// parseBool accepts the spellings people put in shell profiles.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true, nil
	case "no", "off", "":
		return false, nil
	}
	return strconv.ParseBool(s)
}
