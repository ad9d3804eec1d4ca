package native

import "errors"

// Loader errors.
var (
	// ErrOpen is returned when a module file cannot be opened.
	ErrOpen = errors.New("cannot open plugin module")

	// ErrSymbolNotFound is returned when a module lacks a required entry point.
	ErrSymbolNotFound = errors.New("plugin entry point not found")

	// ErrAlreadyLoaded is returned when loading an id that is already loaded.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrNotLoaded is returned for operations on an id that is not loaded.
	ErrNotLoaded = errors.New("plugin is not loaded")

	// ErrInitializeFailed is returned when plugin_initialize reports failure.
	ErrInitializeFailed = errors.New("plugin initialize failed")

	// ErrShutdownFailed is returned when plugin_shutdown reports failure.
	ErrShutdownFailed = errors.New("plugin shutdown failed")

	// ErrMalformedResult is returned when a plugin returns text that is not valid JSON.
	ErrMalformedResult = errors.New("plugin returned malformed JSON")

	// ErrInvalidJSON is returned for JSON arguments that do not parse.
	ErrInvalidJSON = errors.New("argument is not valid JSON")

	// ErrInteriorNUL is returned for arguments that cannot be passed as C strings.
	ErrInteriorNUL = errors.New("argument contains NUL byte")

	// ErrUnsupportedPlatform is returned where native modules cannot be opened.
	ErrUnsupportedPlatform = errors.New("native plugins are not supported on this platform")
)
