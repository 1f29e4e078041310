package tts

import "github.com/aurelia-labs/voicekit/plugin"

func init() {
	plugin.Register(plugin.Base{PluginName: "cartesia", PluginVersion: "0.1.0"})
	plugin.Register(plugin.Base{PluginName: "polly", PluginVersion: "0.1.0"})
}
