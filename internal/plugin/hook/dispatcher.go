package hook

import "sort"

// Dispatcher indexes hook subscriptions in both directions.
type Dispatcher struct {
	// hooks maps hook names to subscribed plugin ids
	hooks map[string]map[string]struct{}

	// plugins maps plugin ids to their hook names
	plugins map[string]map[string]struct{}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		hooks:   make(map[string]map[string]struct{}),
		plugins: make(map[string]map[string]struct{}),
	}
}

// Register subscribes pluginID to hookName. Registering twice is a no-op.
func (d *Dispatcher) Register(hookName, pluginID string) {
	add(d.hooks, hookName, pluginID)
	add(d.plugins, pluginID, hookName)
}

// RegisterMany subscribes pluginID to every name in hookNames.
func (d *Dispatcher) RegisterMany(hookNames []string, pluginID string) {
	for _, name := range hookNames {
		d.Register(name, pluginID)
	}
}

// Unregister removes a single subscription.
func (d *Dispatcher) Unregister(hookName, pluginID string) {
	remove(d.hooks, hookName, pluginID)
	remove(d.plugins, pluginID, hookName)
}

// UnregisterAll removes every subscription of pluginID and returns how
// many were removed.
func (d *Dispatcher) UnregisterAll(pluginID string) int {
	names := d.plugins[pluginID]
	delete(d.plugins, pluginID)
	for name := range names {
		remove(d.hooks, name, pluginID)
	}
	return len(names)
}

// Listeners returns the plugins subscribed to hookName, sorted by id.
func (d *Dispatcher) Listeners(hookName string) []string {
	return sortedKeys(d.hooks[hookName])
}

// HasListeners reports whether any plugin subscribes to hookName.
func (d *Dispatcher) HasListeners(hookName string) bool {
	return len(d.hooks[hookName]) > 0
}

// PluginHooks returns the hooks pluginID subscribes to, sorted.
func (d *Dispatcher) PluginHooks(pluginID string) []string {
	return sortedKeys(d.plugins[pluginID])
}

// Hooks returns every hook name with at least one subscriber, sorted.
func (d *Dispatcher) Hooks() []string {
	names := make([]string, 0, len(d.hooks))
	for name := range d.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear drops every subscription.
func (d *Dispatcher) Clear() {
	d.hooks = make(map[string]map[string]struct{})
	d.plugins = make(map[string]map[string]struct{})
}

func add(index map[string]map[string]struct{}, key, value string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[value] = struct{}{}
}

func remove(index map[string]map[string]struct{}, key, value string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, value)
	if len(set) == 0 {
		delete(index, key)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
