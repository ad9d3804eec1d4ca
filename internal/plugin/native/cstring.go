package native

import (
	"strings"
	"unsafe"
)

// ownedString is a string returned by a plugin. Its memory belongs to the
// plugin and must go back through the plugin's free function exactly once.
type ownedString struct {
	ptr  uintptr
	free FreeStringFunc
}

func own(ptr uintptr, free FreeStringFunc) *ownedString {
	return &ownedString{ptr: ptr, free: free}
}

// IsNull reports whether the plugin returned null.
func (s *ownedString) IsNull() bool {
	return s.ptr == 0
}

// Take copies the text into Go memory and releases the plugin allocation.
// Later calls return the empty string.
func (s *ownedString) Take() string {
	if s.ptr == 0 {
		return ""
	}
	text := goString(s.ptr)
	s.Release()
	return text
}

// Release hands the pointer back to the plugin. It is a no-op for null and
// for already released strings.
func (s *ownedString) Release() {
	if s.ptr == 0 {
		return
	}
	ptr := s.ptr
	s.ptr = 0
	s.free(ptr)
}

// goString copies a NUL-terminated C string. Invalid UTF-8 is replaced.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	base := unsafe.Pointer(ptr)
	n := 0
	for *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
	}
	return strings.ToValidUTF8(string(unsafe.Slice((*byte)(base), n)), "\uFFFD")
}

// checkCString rejects arguments that would be truncated at a C boundary.
func checkCString(args ...string) error {
	for _, a := range args {
		if strings.IndexByte(a, 0) >= 0 {
			return ErrInteriorNUL
		}
	}
	return nil
}
