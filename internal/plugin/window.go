package plugin

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// WindowLaunch tells the UI shell how to open a plugin window.
type WindowLaunch struct {
	PluginID string `json:"pluginId"`
	Window   string `json:"window"`
	Label    string `json:"label"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// WindowConfig returns a window declared in the plugin's manifest, with
// defaults applied.
func (m *Manager) WindowConfig(id, window string) (api.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.registry.Get(id)
	if err != nil {
		return api.Window{}, err
	}
	w, ok := e.Manifest.Window(window)
	if !ok {
		return api.Window{}, fmt.Errorf("plugin %q: %w: %s", id, ErrWindowNotFound, window)
	}
	return w, nil
}

// ResolveWindow builds the launch descriptor for one of the plugin's
// windows. The page is addressed as plugin://localhost/<id>/<path>. When
// data is given it is passed to the page as base64url JSON in the state
// query parameter, and a string "path" field in it is also passed as path.
func (m *Manager) ResolveWindow(id, window, title string, data api.RawJSON) (WindowLaunch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveWindowLocked(id, window, title, data)
}

func (m *Manager) resolveWindowLocked(id, window, title string, data api.RawJSON) (WindowLaunch, error) {
	e, err := m.registry.Get(id)
	if err != nil {
		return WindowLaunch{}, err
	}
	w, ok := e.Manifest.Window(window)
	if !ok {
		return WindowLaunch{}, fmt.Errorf("plugin %q: %w: %s", id, ErrWindowNotFound, window)
	}

	page, err := pluginFile(e.Dir, w.Path)
	if err != nil {
		return WindowLaunch{}, fmt.Errorf("plugin %q: window %s: %w", id, window, err)
	}
	if _, err := os.Stat(page); err != nil {
		return WindowLaunch{}, fmt.Errorf("plugin %q: window %s: %w", id, window, err)
	}

	u := url.URL{
		Scheme: "plugin",
		Host:   "localhost",
		Path:   "/" + id + "/" + path.Clean(strings.ReplaceAll(w.Path, `\`, "/")),
	}
	if !api.IsNull(data) {
		var query []string
		if p := gjson.GetBytes(data, "path"); p.Type == gjson.String {
			query = append(query, "path="+url.QueryEscape(p.Str))
		}
		state := base64.RawURLEncoding.EncodeToString(pretty.Ugly(data))
		query = append(query, "state="+state)
		u.RawQuery = strings.Join(query, "&")
	}

	if title == "" {
		title = w.Title
	}
	return WindowLaunch{
		PluginID: id,
		Window:   window,
		Label:    fmt.Sprintf("plugin-%s-%s-%s", id, window, uuid.NewString()),
		URL:      u.String(),
		Title:    title,
		Width:    w.Width,
		Height:   w.Height,
	}, nil
}

// WindowForResult resolves the window a successful tool result asks to
// open. It returns nil when the result carries no open_window action.
func (m *Manager) WindowForResult(id string, res api.ToolResult) (*WindowLaunch, error) {
	if !res.Success {
		return nil, nil
	}
	action, ok, err := api.ParseToolAction(res.Data)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", id, err)
	}
	if !ok || action.Action != api.ActionOpenWindow {
		return nil, nil
	}
	launch, err := m.ResolveWindow(id, action.Window, action.Title, action.WindowData)
	if err != nil {
		return nil, err
	}
	return &launch, nil
}

// ReadUI reads a file from the plugin's directory, such as its panel page.
func (m *Manager) ReadUI(id, relPath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.registry.Get(id)
	if err != nil {
		return nil, err
	}
	file, err := pluginFile(e.Dir, relPath)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", id, err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: read %s: %w", id, relPath, err)
	}
	return data, nil
}

// pluginFile joins a relative path onto dir, refusing anything that escapes it.
func pluginFile(dir, rel string) (string, error) {
	slashed := strings.ReplaceAll(rel, `\`, "/")
	if rel == "" || path.IsAbs(slashed) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	clean := path.Clean(slashed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}
