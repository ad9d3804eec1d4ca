package plugin

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// maxManifestSize bounds the manifest read from a package.
const maxManifestSize = 1 << 20

// stagingPrefix marks in-progress installs; the registry ignores dot dirs.
const stagingPrefix = ".install-"

// Install extracts a zip package into the plugins root and registers it,
// disabled. The package must contain exactly one manifest.json; its
// directory is the package root. When the manifest sits in a subdirectory,
// entries outside that subdirectory are skipped and logged at debug level.
// An existing plugin with the same id is uninstalled first. A package whose
// id names the directory of a different installed plugin is rejected with
// ErrPluginExists.
func (m *Manager) Install(packagePath string) (api.PluginInfo, error) {
	m.mu.Lock()
	var (
		info api.PluginInfo
		err  = m.checkOpen()
	)
	if err == nil {
		info, err = m.installLocked(packagePath)
	}
	m.mu.Unlock()

	m.emit(eventFor(EventInstalled, info.ID, err))
	return info, err
}

func (m *Manager) installLocked(packagePath string) (api.PluginInfo, error) {
	zr, err := zip.OpenReader(packagePath)
	if err != nil {
		// OpenReader hands back a reader alongside ErrInsecurePath.
		if zr != nil {
			zr.Close()
		}
		return api.PluginInfo{}, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, packagePath, err)
	}
	defer zr.Close()

	mf, root, err := findManifest(zr.File)
	if err != nil {
		return api.PluginInfo{}, err
	}
	man, err := readManifest(mf)
	if err != nil {
		return api.PluginInfo{}, err
	}

	dest := filepath.Join(m.registry.Dir(), man.ID)
	if owner, ok := m.registry.OwnerOf(dest); ok && owner != man.ID {
		return api.PluginInfo{}, fmt.Errorf("plugin %q: %w: directory %s belongs to plugin %q",
			man.ID, ErrPluginExists, dest, owner)
	}

	staging := filepath.Join(m.registry.Dir(), stagingPrefix+uuid.NewString())
	defer os.RemoveAll(staging)

	if err := extract(zr.File, root, staging, man.Main, m.logger); err != nil {
		return api.PluginInfo{}, err
	}
	if _, err := os.Stat(filepath.Join(staging, man.Main)); err != nil {
		return api.PluginInfo{}, fmt.Errorf("%w: module %q not in package", ErrInvalidPackage, man.Main)
	}

	if m.registry.Exists(man.ID) {
		m.logger.Info("replacing installed plugin", zap.String("plugin", man.ID))
		if err := m.uninstallLocked(man.ID); err != nil {
			return api.PluginInfo{}, err
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return api.PluginInfo{}, fmt.Errorf("plugin %q: clear directory: %w", man.ID, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		return api.PluginInfo{}, fmt.Errorf("plugin %q: move into place: %w", man.ID, err)
	}

	info, err := m.registry.Register(man, dest)
	if err != nil {
		os.RemoveAll(dest)
		return api.PluginInfo{}, err
	}

	m.logger.Info("plugin installed",
		zap.String("plugin", man.ID),
		zap.String("version", man.Version),
		zap.String("package", packagePath))
	return info, nil
}

// findManifest locates the single manifest.json and returns it with the
// package root (the manifest's directory, "." at the top level).
func findManifest(files []*zip.File) (*zip.File, string, error) {
	var found []*zip.File
	for _, f := range files {
		name := entryName(f)
		if f.FileInfo().IsDir() || path.Base(name) != api.ManifestFile {
			continue
		}
		found = append(found, f)
	}
	switch len(found) {
	case 0:
		return nil, "", fmt.Errorf("%w: no %s", ErrInvalidPackage, api.ManifestFile)
	case 1:
		return found[0], path.Dir(entryName(found[0])), nil
	default:
		return nil, "", fmt.Errorf("%w: %d %s files", ErrInvalidPackage, len(found), api.ManifestFile)
	}
}

func readManifest(f *zip.File) (*api.Manifest, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open manifest: %v", ErrInvalidPackage, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", ErrInvalidPackage, err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest too large", ErrInvalidPackage)
	}
	man, err := api.ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPackage, err)
	}
	return man, nil
}

// entryName returns the slash-separated name of a zip entry.
func entryName(f *zip.File) string {
	return strings.ReplaceAll(f.Name, `\`, "/")
}

// extract writes every entry under root into dest. Any entry whose name
// would land outside dest rejects the whole package.
func extract(files []*zip.File, root, dest, mainFile string, logger *zap.Logger) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	for _, f := range files {
		name := entryName(f)
		if !safeEntry(name) {
			return fmt.Errorf("%w: unsafe entry %q", ErrInvalidPackage, f.Name)
		}

		rel := path.Clean(name)
		if root != "." {
			if rel == root {
				continue
			}
			if !strings.HasPrefix(rel, root+"/") {
				logger.Debug("skipping entry outside package root",
					zap.String("entry", name), zap.String("root", root))
				continue
			}
			rel = strings.TrimPrefix(rel, root+"/")
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", rel, err)
			}
		case mode&os.ModeSymlink != 0:
			// Links could point outside the plugin directory.
			continue
		default:
			if err := writeEntry(f, target); err != nil {
				return err
			}
			if needsExec(rel, mainFile) {
				if err := os.Chmod(target, 0o755); err != nil {
					return fmt.Errorf("chmod %s: %w", rel, err)
				}
			}
		}
	}
	return nil
}

func safeEntry(name string) bool {
	if name == "" || strings.ContainsRune(name, 0) || path.IsAbs(name) || filepath.VolumeName(name) != "" {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func writeEntry(f *zip.File, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrInvalidPackage, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", f.Name, cerr)
		}
	}()

	if _, err := io.Copy(out, rc); err != nil {
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPackage, f.Name, err)
		}
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return nil
}

// needsExec reports whether an extracted file must be executable.
func needsExec(rel, mainFile string) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	if rel == mainFile {
		return true
	}
	switch strings.ToLower(path.Ext(rel)) {
	case ".so", ".dylib":
		return true
	}
	return false
}
