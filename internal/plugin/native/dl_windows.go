//go:build windows

package native

import (
	"github.com/ebitengine/purego"
	"golang.org/x/sys/windows"
)

// SystemOpener returns an Opener that loads DLLs with LoadLibrary.
func SystemOpener() Opener {
	return OpenerFunc(openDLL)
}

type dllModule struct {
	handle windows.Handle
}

func openDLL(path string) (Module, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, err
	}
	return &dllModule{handle: h}, nil
}

func (m *dllModule) Bind(symbol string, fnPtr any) error {
	sym, err := windows.GetProcAddress(m.handle, symbol)
	if err != nil {
		return err
	}
	purego.RegisterFunc(fnPtr, sym)
	return nil
}

func (m *dllModule) Close() error {
	if m.handle == 0 {
		return nil
	}
	h := m.handle
	m.handle = 0
	return windows.FreeLibrary(h)
}
