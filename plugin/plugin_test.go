package plugin

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type countingPlugin struct {
	Base
	downloads int
	fail      bool
}

func (p *countingPlugin) DownloadFiles(ctx context.Context) error {
	if p.fail {
		return errors.New("download failed")
	}
	p.downloads++
	return nil
}

func resetRegistry() {
	mu.Lock()
	registered = nil
	mu.Unlock()
}

func TestRegisterAndEnumerate(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	Register(&countingPlugin{Base: Base{PluginName: "cartesia", PluginVersion: "0.1.0"}})
	Register(&countingPlugin{Base: Base{PluginName: "aws", PluginVersion: "0.2.0"}})

	plugins := Registered()
	if len(plugins) != 2 {
		t.Fatalf("Expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Name() != "cartesia" || plugins[1].Name() != "aws" {
		t.Errorf("Unexpected plugin order: %s, %s", plugins[0].Name(), plugins[1].Name())
	}
}

func TestDownloadAll(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	p := &countingPlugin{Base: Base{PluginName: "google", PluginVersion: "0.1.0"}}
	Register(p)

	if err := DownloadAll(context.Background(), zap.NewNop()); err != nil {
		t.Fatalf("DownloadAll failed: %v", err)
	}
	if p.downloads != 1 {
		t.Errorf("Expected 1 download, got %d", p.downloads)
	}
}

func TestDownloadAllStopsOnError(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	failing := &countingPlugin{Base: Base{PluginName: "bad"}, fail: true}
	after := &countingPlugin{Base: Base{PluginName: "after"}}
	Register(failing)
	Register(after)

	if err := DownloadAll(context.Background(), zap.NewNop()); err == nil {
		t.Fatal("Expected error from failing plugin")
	}
	if after.downloads != 0 {
		t.Error("Plugins after a failure should not run")
	}
}
