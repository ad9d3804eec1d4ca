package api

import (
	"bytes"
	stdjson "encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// json is the codec used for everything that crosses the plugin boundary.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes v as boundary JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent encodes v as indented JSON.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes boundary JSON into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Valid reports whether data is a single well-formed JSON value.
func Valid(data []byte) bool {
	return json.Valid(data)
}

// emptyObject is the default configuration for a freshly registered plugin.
var emptyObject = []byte("{}")

// EmptyConfig returns a new empty JSON object.
func EmptyConfig() RawJSON {
	return RawJSON(bytes.Clone(emptyObject))
}

// RawJSON is an arbitrary JSON value that is carried through the host
// without being interpreted.
type RawJSON = stdjson.RawMessage

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw RawJSON) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// OrNull returns raw, or the JSON literal null when raw is empty.
func OrNull(raw RawJSON) RawJSON {
	if len(bytes.TrimSpace(raw)) == 0 {
		return RawJSON("null")
	}
	return raw
}
