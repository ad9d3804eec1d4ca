// Package llmtool exposes plugin tools to LLM tool-calling APIs.
//
// Tool names from different plugins may collide and may contain characters
// the providers reject, so every tool is published under a qualified name
// (<plugin>__<tool>, restricted to [A-Za-z0-9_-], at most 64 characters).
// A Catalog remembers which plugin tool each qualified name stands for and
// routes the model's calls back to it.
package llmtool

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// MaxNameLength is the longest tool name the providers accept.
const MaxNameLength = 64

// separator joins plugin id and tool name.
const separator = "__"

// ErrUnknownTool is returned when a qualified name is not in the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Host is the part of the plugin manager the catalog needs.
type Host interface {
	GetAllTools() []api.ToolDefinition
	ExecuteTool(id string, call api.ToolCall) (api.ToolResult, error)
}

// Tool is a plugin tool published under a qualified name.
type Tool struct {
	Name       string
	Definition api.ToolDefinition
}

// QualifiedName returns the provider-safe name for a plugin tool.
func QualifiedName(pluginID, tool string) string {
	name := sanitize(pluginID) + separator + sanitize(tool)
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	return name
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// Catalog maps qualified names to plugin tools.
type Catalog struct {
	host   Host
	logger *zap.Logger

	mu     sync.RWMutex
	tools  []Tool
	byName map[string]api.ToolDefinition
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// NewCatalog creates a catalog over host and takes a first snapshot.
func NewCatalog(host Host, opts ...Option) *Catalog {
	c := &Catalog{
		host:   host,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Refresh()
	return c
}

// Refresh re-reads the tools of every loaded plugin. Names that collide
// after sanitizing or truncation get a numeric suffix.
func (c *Catalog) Refresh() []Tool {
	defs := c.host.GetAllTools()

	tools := make([]Tool, 0, len(defs))
	byName := make(map[string]api.ToolDefinition, len(defs))
	for _, def := range defs {
		name := QualifiedName(def.PluginID, def.Name)
		for i := 2; ; i++ {
			if _, taken := byName[name]; !taken {
				break
			}
			suffix := "_" + strconv.Itoa(i)
			base := QualifiedName(def.PluginID, def.Name)
			if len(base)+len(suffix) > MaxNameLength {
				base = base[:MaxNameLength-len(suffix)]
			}
			name = base + suffix
		}
		byName[name] = def
		tools = append(tools, Tool{Name: name, Definition: def})
	}

	c.mu.Lock()
	c.tools = tools
	c.byName = byName
	c.mu.Unlock()

	c.logger.Debug("tool catalog refreshed", zap.Int("tools", len(tools)))
	return tools
}

// Tools returns the current snapshot.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// Lookup resolves a qualified name.
func (c *Catalog) Lookup(name string) (api.ToolDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.byName[name]
	return def, ok
}

// Call routes a model tool call to its plugin.
func (c *Catalog) Call(name string, args api.RawJSON) (api.ToolResult, error) {
	def, ok := c.Lookup(name)
	if !ok {
		return api.ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return c.host.ExecuteTool(def.PluginID, api.ToolCall{Name: def.Name, Arguments: args})
}

// invoke runs a call and renders the outcome as tool-result text.
func (c *Catalog) invoke(name string, args api.RawJSON) (string, bool) {
	res, err := c.Call(name, args)
	if err != nil {
		c.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return err.Error(), true
	}
	if !res.Success {
		return res.Error, true
	}
	return string(api.OrNull(res.Data)), false
}

// objectSchema returns the parameter schema as a JSON object, defaulting
// to an empty object schema.
func objectSchema(def api.ToolDefinition) map[string]any {
	schema := map[string]any{}
	if !api.IsNull(def.Parameters) {
		if err := api.Unmarshal(def.Parameters, &schema); err != nil {
			schema = map[string]any{}
		}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}
