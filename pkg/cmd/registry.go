// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/matterflow/pkg/actions/httprequest"
	logaction "github.com/dukex/matterflow/pkg/actions/log"
	"github.com/dukex/matterflow/pkg/actions/publish"
	"github.com/dukex/matterflow/pkg/actions/transform"
	"github.com/dukex/matterflow/pkg/eventbus"
	"github.com/dukex/matterflow/pkg/registry"
)

func registerActionPlugins(reg *registry.Registry, pluginsPath string) {
	_, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}
}

func registerNativeActions(reg *registry.Registry, logger *slog.Logger, publisher eventbus.EventPublisher) {
	reg.RegisterPlugin(logaction.NewAction(logger))
	reg.RegisterPlugin(httprequest.NewAction(logger))
	reg.RegisterPlugin(transform.NewAction(logger))

	if publisher != nil {
		reg.RegisterPlugin(publish.NewAction(logger, publisher))
	}
}

// NewRegistry registers the native actions and the plugins found under
// pluginsPath. Native kinds win over plugins of the same kind. The publish
// action is only available when a publisher is given.
func NewRegistry(logger *slog.Logger, pluginsPath string, publisher eventbus.EventPublisher) *registry.Registry {
	reg := registry.NewRegistry(logger)

	registerActionPlugins(reg, pluginsPath)
	registerNativeActions(reg, logger, publisher)

	return reg
}
