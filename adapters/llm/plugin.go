package llm

import "github.com/aurelia-labs/voicekit/plugin"

func init() {
	plugin.Register(plugin.Base{PluginName: "gemini", PluginVersion: "0.1.0"})
	plugin.Register(plugin.Base{PluginName: "bedrock", PluginVersion: "0.1.0"})
}
