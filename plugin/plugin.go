// Package plugin keeps a registry of provider plugins so tooling can
// enumerate them and prefetch their assets.
package plugin

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Plugin is a provider integration that can be enumerated by tooling.
type Plugin interface {
	Name() string
	Version() string
	// DownloadFiles prefetches any assets the plugin needs before first
	// use. Most providers are pure API clients and have nothing to fetch.
	DownloadFiles(ctx context.Context) error
}

var (
	mu         sync.RWMutex
	registered []Plugin
)

// Register adds a plugin to the registry. Call from the plugin's init.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	registered = append(registered, p)
}

// Registered returns all registered plugins.
func Registered() []Plugin {
	mu.RLock()
	defer mu.RUnlock()
	return append([]Plugin(nil), registered...)
}

// DownloadAll runs DownloadFiles for every registered plugin.
func DownloadAll(ctx context.Context, logger *zap.Logger) error {
	for _, p := range Registered() {
		logger.Info("Downloading files", zap.String("plugin", p.Name()))
		if err := p.DownloadFiles(ctx); err != nil {
			return err
		}
		logger.Info("Finished downloading files", zap.String("plugin", p.Name()))
	}
	return nil
}

// Base is a convenience embed for plugins with no assets to download.
type Base struct {
	PluginName    string
	PluginVersion string
}

func (b Base) Name() string    { return b.PluginName }
func (b Base) Version() string { return b.PluginVersion }

func (b Base) DownloadFiles(ctx context.Context) error { return nil }
