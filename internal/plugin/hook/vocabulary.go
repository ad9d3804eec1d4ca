package hook

// Hook names the host broadcasts.
const (
	FileOpened          = "file-opened"
	TextSelected        = "text-selected"
	AppStarted          = "app-started"
	AppClosing          = "app-closing"
	BeforeMessageSend   = "before-message-send"
	AfterMessageReceive = "after-message-receive"
	CustomAction        = "custom-action"
)

var known = map[string]bool{
	FileOpened:          true,
	TextSelected:        true,
	AppStarted:          true,
	AppClosing:          true,
	BeforeMessageSend:   true,
	AfterMessageReceive: true,
	CustomAction:        true,
}

// Known reports whether name is part of the host's hook vocabulary.
func Known(name string) bool {
	return known[name]
}

// Names returns the hook vocabulary in declaration order.
func Names() []string {
	return []string{
		FileOpened,
		TextSelected,
		AppStarted,
		AppClosing,
		BeforeMessageSend,
		AfterMessageReceive,
		CustomAction,
	}
}
