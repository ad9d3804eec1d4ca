package hook

import (
	"fmt"

	"github.com/tablefri/pluginhost/internal/plugin/api"
)

// InvokeFunc delivers an event to one plugin and returns its answer. Nil
// data means the plugin had nothing to say.
type InvokeFunc func(pluginID string) (api.RawJSON, error)

// ErrorFunc observes a failed delivery.
type ErrorFunc func(pluginID string, err error)

// Broadcast calls invoke for every id in order and collects the non-null
// answers. Errors and panics from a single subscriber are passed to onError
// (which may be nil) and do not stop the broadcast.
func Broadcast(ids []string, invoke InvokeFunc, onError ErrorFunc) []api.HookResult {
	results := make([]api.HookResult, 0, len(ids))
	for _, id := range ids {
		data, err := deliver(id, invoke)
		if err != nil {
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		if api.IsNull(data) {
			continue
		}
		results = append(results, api.HookResult{PluginID: id, Data: data})
	}
	return results
}

func deliver(id string, invoke InvokeFunc) (data api.RawJSON, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook subscriber panicked: %v", r)
		}
	}()
	return invoke(id)
}
