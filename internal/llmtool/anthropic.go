package llmtool

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// AnthropicTools returns the catalog as Messages API tool definitions.
func (c *Catalog) AnthropicTools() []anthropic.ToolUnionParam {
	tools := c.Tools()
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := objectSchema(t.Definition)
		tool := anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   requiredFields(schema),
			},
		}
		if t.Definition.Description != "" {
			tool.Description = anthropic.String(t.Definition.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

// HandleAnthropicToolUse executes a tool_use block and returns the
// tool_result block to send back. Failures are reported with is_error.
func (c *Catalog) HandleAnthropicToolUse(block anthropic.ToolUseBlock) anthropic.ContentBlockParamUnion {
	args, err := api.Marshal(block.Input)
	if err != nil {
		return anthropic.NewToolResultBlock(block.ID, "invalid tool input: "+err.Error(), true)
	}
	content, isError := c.invoke(block.Name, api.RawJSON(args))
	return anthropic.NewToolResultBlock(block.ID, content, isError)
}

func requiredFields(schema map[string]any) []string {
	raw, ok := schema["required"].([]any)
	if !ok {
		return nil
	}
	req := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			req = append(req, s)
		}
	}
	return req
}
