package api

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidArguments is returned when tool arguments do not satisfy the
// tool's parameter schema.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// CompileSchema compiles a tool parameter schema. A null or empty schema
// compiles to nil, which accepts everything.
func CompileSchema(name string, raw RawJSON) (*jsonschema.Schema, error) {
	if IsNull(raw) {
		return nil, nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}
	url := "tool://" + name + "/parameters.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema for %s: %w", name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return sch, nil
}

// ValidateArguments checks args against the tool's parameter schema.
func (d ToolDefinition) ValidateArguments(args RawJSON) error {
	sch, err := CompileSchema(d.Name, d.Parameters)
	if err != nil {
		// A plugin advertising an unusable schema does not block its own tool.
		return nil
	}
	if sch == nil {
		return nil
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(OrNull(args)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
