package llmtool

import (
	"strings"

	"github.com/openai/openai-go"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// OpenAITools returns the catalog as Chat Completions function tools.
func (c *Catalog) OpenAITools() []openai.ChatCompletionToolParam {
	tools := c.Tools()
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		fn := openai.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: openai.FunctionParameters(objectSchema(t.Definition)),
		}
		if t.Definition.Description != "" {
			fn.Description = openai.String(t.Definition.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

// HandleOpenAIToolCall executes a function tool call and returns the tool
// message to append to the conversation. The API has no error flag, so
// failures are prefixed with "error: ".
func (c *Catalog) HandleOpenAIToolCall(call openai.ChatCompletionMessageToolCall) openai.ChatCompletionMessageParamUnion {
	var args api.RawJSON
	if strings.TrimSpace(call.Function.Arguments) != "" {
		args = api.RawJSON(call.Function.Arguments)
	}
	content, isError := c.invoke(call.Function.Name, args)
	if isError {
		content = "error: " + content
	}
	return openai.ToolMessage(content, call.ID)
}
