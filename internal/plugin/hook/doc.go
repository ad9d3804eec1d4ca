// Package hook routes host events to the plugins that subscribe to them.
//
// A plugin subscribes by listing hook names in its manifest. While the
// plugin is loaded the Dispatcher keeps a many-to-many index between hook
// names and plugin ids. Broadcast delivers one event to an ordered list of
// subscribers and collects whatever they answer; a failing subscriber is
// reported and skipped, never fatal to the broadcast.
//
// Example usage:
//
//	d := hook.NewDispatcher()
//	d.RegisterMany(manifest.Hooks, manifest.ID)
//
//	results := hook.Broadcast(d.Listeners(hook.FileOpened), func(id string) (api.RawJSON, error) {
//		return loader.TriggerHook(id, hook.FileOpened, data)
//	}, nil)
//
// The Dispatcher is not safe for concurrent use.
package hook
