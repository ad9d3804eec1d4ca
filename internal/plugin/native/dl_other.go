//go:build !darwin && !linux && !windows

package native

// SystemOpener returns an Opener that always fails on this platform.
func SystemOpener() Opener {
	return OpenerFunc(func(string) (Module, error) {
		return nil, ErrUnsupportedPlatform
	})
}
