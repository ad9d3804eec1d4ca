package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidwall/sjson"

	"github.com/tablefri/pluginhost/internal/app"
	"github.com/tablefri/pluginhost/internal/plugin"
	"github.com/tablefri/pluginhost/internal/plugin/api"
)

type command struct {
	name    string
	args    string
	help    string
	minArgs int
	maxArgs int
	run     func(a *app.Application, out *printer, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"list", "", "List installed plugins", 0, 0, cmdList},
		{"info", "<id>", "Show a plugin's manifest, state and subscriptions", 1, 1, cmdInfo},
		{"install", "<package.zip>", "Install or replace a plugin package", 1, 1, cmdInstall},
		{"uninstall", "<id>", "Remove a plugin", 1, 1, cmdUninstall},
		{"enable", "<id>", "Load and initialize a plugin", 1, 1, cmdEnable},
		{"disable", "<id>", "Shut down and unload a plugin", 1, 1, cmdDisable},
		{"config", "<id> [json]", "Show or replace a plugin's configuration", 1, 2, cmdConfig},
		{"config-set", "<id> <path> <json>", "Set one configuration value by dotted path", 3, 3, cmdConfigSet},
		{"tools", "", "List tools of all enabled plugins", 0, 0, cmdTools},
		{"exec", "<id> <tool> [json]", "Execute a plugin tool", 2, 3, cmdExec},
		{"hook", "<name> [json]", "Broadcast a hook to subscribed plugins", 1, 2, cmdHook},
		{"window", "<id> <window> [json]", "Resolve a plugin window launch", 2, 3, cmdWindow},
		{"llm-tools", "[anthropic|openai]", "Print tool declarations for an LLM provider", 0, 1, cmdLLMTools},
		{"serve", "", "Run until interrupted, watching the plugins directory", 0, 0, cmdServe},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// jsonArg returns the optional JSON argument at index i, or def.
func jsonArg(args []string, i int, def string) (api.RawJSON, error) {
	if len(args) <= i {
		return api.RawJSON(def), nil
	}
	raw := api.RawJSON(args[i])
	if !api.Valid(raw) {
		return nil, fmt.Errorf("argument is not valid JSON: %s", args[i])
	}
	return raw, nil
}

func cmdList(a *app.Application, out *printer, _ []string) error {
	return out.value(a.Plugins().List())
}

type pluginDetails struct {
	Info          api.PluginInfo `json:"info"`
	Manifest      *api.Manifest  `json:"manifest"`
	Config        api.RawJSON    `json:"config"`
	Subscriptions []string       `json:"subscriptions"`
}

func cmdInfo(a *app.Application, out *printer, args []string) error {
	mgr := a.Plugins()
	id := args[0]
	info, err := mgr.Get(id)
	if err != nil {
		return err
	}
	manifest, err := mgr.Manifest(id)
	if err != nil {
		return err
	}
	cfg, err := mgr.Config(id)
	if err != nil {
		return err
	}
	return out.value(pluginDetails{
		Info:          info,
		Manifest:      manifest,
		Config:        cfg,
		Subscriptions: mgr.PluginHooks(id),
	})
}

func cmdInstall(a *app.Application, out *printer, args []string) error {
	info, err := a.Plugins().Install(args[0])
	if err != nil {
		return err
	}
	return out.value(info)
}

func cmdUninstall(a *app.Application, out *printer, args []string) error {
	if err := a.Plugins().Uninstall(args[0]); err != nil {
		return err
	}
	return out.value(map[string]string{"uninstalled": args[0]})
}

func cmdEnable(a *app.Application, out *printer, args []string) error {
	if err := a.Plugins().Enable(args[0]); err != nil {
		return err
	}
	return printInfo(a.Plugins(), out, args[0])
}

func cmdDisable(a *app.Application, out *printer, args []string) error {
	if err := a.Plugins().Disable(args[0]); err != nil {
		return err
	}
	return printInfo(a.Plugins(), out, args[0])
}

func printInfo(mgr *plugin.Manager, out *printer, id string) error {
	info, err := mgr.Get(id)
	if err != nil {
		return err
	}
	return out.value(info)
}

func cmdConfig(a *app.Application, out *printer, args []string) error {
	mgr := a.Plugins()
	if len(args) == 2 {
		cfg, err := jsonArg(args, 1, "{}")
		if err != nil {
			return err
		}
		if err := mgr.SetConfig(args[0], cfg); err != nil {
			return err
		}
	}
	cfg, err := mgr.Config(args[0])
	if err != nil {
		return err
	}
	return out.raw(cfg)
}

func cmdConfigSet(a *app.Application, out *printer, args []string) error {
	mgr := a.Plugins()
	value, err := jsonArg(args, 2, "null")
	if err != nil {
		return err
	}
	cfg, err := mgr.Config(args[0])
	if err != nil {
		return err
	}
	updated, err := sjson.SetRawBytes(cfg, args[1], value)
	if err != nil {
		return fmt.Errorf("set %s: %w", args[1], err)
	}
	if err := mgr.SetConfig(args[0], updated); err != nil {
		return err
	}
	return out.raw(updated)
}

func cmdTools(a *app.Application, out *printer, _ []string) error {
	tools := a.Plugins().GetAllTools()
	if tools == nil {
		tools = []api.ToolDefinition{}
	}
	return out.value(tools)
}

type execOutput struct {
	Result api.ToolResult       `json:"result"`
	Window *plugin.WindowLaunch `json:"window,omitempty"`
}

func cmdExec(a *app.Application, out *printer, args []string) error {
	arguments, err := jsonArg(args, 2, "{}")
	if err != nil {
		return err
	}
	mgr := a.Plugins()
	res, err := mgr.ExecuteTool(args[0], api.ToolCall{Name: args[1], Arguments: arguments})
	if err != nil {
		return err
	}
	launch, err := mgr.WindowForResult(args[0], res)
	if err != nil {
		return err
	}
	return out.value(execOutput{Result: res, Window: launch})
}

func cmdHook(a *app.Application, out *printer, args []string) error {
	data, err := jsonArg(args, 1, "{}")
	if err != nil {
		return err
	}
	return out.value(a.Plugins().TriggerHook(args[0], data))
}

func cmdWindow(a *app.Application, out *printer, args []string) error {
	data, err := jsonArg(args, 2, "null")
	if err != nil {
		return err
	}
	launch, err := a.Plugins().ResolveWindow(args[0], args[1], "", data)
	if err != nil {
		return err
	}
	return out.value(launch)
}

func cmdLLMTools(a *app.Application, out *printer, args []string) error {
	provider := ""
	if len(args) == 1 {
		provider = args[0]
	}
	switch provider {
	case "":
		return out.value(a.Tools().Tools())
	case "anthropic":
		return out.value(a.Tools().AnthropicTools())
	case "openai":
		return out.value(a.Tools().OpenAITools())
	default:
		return fmt.Errorf("%w: unknown provider %q", errUsage, provider)
	}
}

func cmdServe(a *app.Application, _ *printer, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
