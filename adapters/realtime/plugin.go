package realtime

import "github.com/aurelia-labs/voicekit/plugin"

func init() {
	plugin.Register(plugin.Base{PluginName: "gemini-live", PluginVersion: "0.1.0"})
}
