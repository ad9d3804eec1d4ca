//go:build darwin || linux

package native

import (
	"github.com/ebitengine/purego"
)

// SystemOpener returns an Opener that loads shared libraries with dlopen.
func SystemOpener() Opener {
	return OpenerFunc(openDL)
}

type dlModule struct {
	handle uintptr
}

func openDL(path string) (Module, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &dlModule{handle: h}, nil
}

func (m *dlModule) Bind(symbol string, fnPtr any) error {
	sym, err := purego.Dlsym(m.handle, symbol)
	if err != nil {
		return err
	}
	purego.RegisterFunc(fnPtr, sym)
	return nil
}

func (m *dlModule) Close() error {
	if m.handle == 0 {
		return nil
	}
	h := m.handle
	m.handle = 0
	return purego.Dlclose(h)
}
