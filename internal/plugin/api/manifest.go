package api

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
)

// ManifestFile is the name of the manifest inside a plugin directory.
const ManifestFile = "manifest.json"

// ErrInvalidManifest is returned for manifests that cannot be parsed or fail validation.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest describes an installed plugin. It is immutable after install.
type Manifest struct {
	ID          string         `json:"id" validate:"required,pluginid"`
	Name        string         `json:"name" validate:"required"`
	Version     string         `json:"version" validate:"required"`
	Author      string         `json:"author"`
	Description string         `json:"description"`
	Main        string         `json:"main" validate:"required,basename"`
	UI          *UI            `json:"ui,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Tools       []ManifestTool `json:"tools,omitempty"`
	Hooks       []string       `json:"hooks,omitempty"`
}

// ManifestTool is the informational tool listing of a manifest.
type ManifestTool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  RawJSON `json:"parameters,omitempty"`
}

// Position is where a plugin panel is docked.
type Position string

// Panel positions.
const (
	PositionSidebar  Position = "sidebar"
	PositionToolbar  Position = "toolbar"
	PositionFloating Position = "floating"
)

// UI is the optional user-interface section of a manifest.
type UI struct {
	Panel    string            `json:"panel,omitempty"`
	Position Position          `json:"position,omitempty" validate:"omitempty,oneof=sidebar toolbar floating"`
	Windows  map[string]Window `json:"windows,omitempty" validate:"omitempty,dive"`
}

// Window describes a named window a plugin can ask the host to open.
type Window struct {
	Path   string `json:"path" validate:"required,relpath"`
	Width  int    `json:"width,omitempty" default:"900" validate:"gte=0"`
	Height int    `json:"height,omitempty" default:"700" validate:"gte=0"`
	Title  string `json:"title,omitempty" default:"Plugin Window"`
}

// requiredFields must be present in the raw manifest document.
var requiredFields = []string{"id", "name", "version", "author", "description", "main"}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("pluginid", func(fl validator.FieldLevel) bool {
		return ValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("basename", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
	})
	_ = v.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
		return safeRel(fl.Field().String())
	})
	return v
}

// ValidID reports whether id can be used as a plugin id and directory name.
func ValidID(id string) bool {
	return id != ".." && idPattern.MatchString(id)
}

func safeRel(p string) bool {
	if p == "" || strings.ContainsRune(p, 0) {
		return false
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if path.IsAbs(p) || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidManifest)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidManifest)
	}
	for _, field := range requiredFields {
		if !doc.Get(field).Exists() {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidManifest, field)
		}
	}

	var m Manifest
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.applyDefaults(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(file string) (*Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return m, nil
}

// LoadManifestFromDir loads the manifest.json inside dir.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFile))
}

func (m *Manifest) applyDefaults() error {
	if m.UI == nil {
		return nil
	}
	for name, w := range m.UI.Windows {
		if err := defaults.Set(&w); err != nil {
			return fmt.Errorf("%w: window %q: %v", ErrInvalidManifest, name, err)
		}
		m.UI.Windows[name] = w
	}
	return nil
}

// Validate checks field constraints.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidManifest, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return nil
}

// Window returns the named window declared by the manifest.
func (m *Manifest) Window(name string) (Window, bool) {
	if m.UI == nil {
		return Window{}, false
	}
	w, ok := m.UI.Windows[name]
	return w, ok
}

// Clone returns a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Permissions = append([]string(nil), m.Permissions...)
	c.Hooks = append([]string(nil), m.Hooks...)
	if m.Tools != nil {
		c.Tools = make([]ManifestTool, len(m.Tools))
		copy(c.Tools, m.Tools)
	}
	if m.UI != nil {
		ui := *m.UI
		if m.UI.Windows != nil {
			ui.Windows = make(map[string]Window, len(m.UI.Windows))
			for k, v := range m.UI.Windows {
				ui.Windows[k] = v
			}
		}
		c.UI = &ui
	}
	return &c
}

// String returns "name vVersion".
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.Name, m.Version)
}
