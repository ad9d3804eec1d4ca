package registry

import (
	"fmt"
	"os"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// StateFile is the name of the state file at the plugins root.
const StateFile = "registry.json"

// persistedPlugin is the stored state of one plugin.
type persistedPlugin struct {
	Enabled bool        `json:"enabled"`
	Config  api.RawJSON `json:"config"`
}

// persistedState is the root structure of the state file.
type persistedState struct {
	Plugins map[string]persistedPlugin `json:"plugins"`
}

// loadState reads the state file. A missing file is an empty state.
func loadState(path string) (persistedState, error) {
	state := persistedState{Plugins: make(map[string]persistedPlugin)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("read state file: %w", err)
	}
	if err := api.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}
	if state.Plugins == nil {
		state.Plugins = make(map[string]persistedPlugin)
	}
	return state, nil
}

// saveState writes the state file atomically using a temp file and rename.
func saveState(path string, state persistedState) error {
	data, err := api.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}
