package stt

import "github.com/aurelia-labs/voicekit/plugin"

func init() {
	plugin.Register(plugin.Base{PluginName: "google-speech", PluginVersion: "0.1.0"})
	plugin.Register(plugin.Base{PluginName: "transcribe", PluginVersion: "0.1.0"})
}
