// Package drivers holds the built-in implementations of the external
// collaborator interfaces: the cloud provisioner, the base-configuration
// layer, and the application installer.
//
// The dry-run driver logs every action and succeeds without touching any
// remote system. It is the default, so the engine can be exercised end to
// end before real provider and installer drivers are wired in behind the
// same interfaces.
package drivers

import (
	"context"

	"go.uber.org/zap"

	"github.com/skycrane/skycrane/pkg/catalog"
	"github.com/skycrane/skycrane/pkg/orchestrator"
	"github.com/skycrane/skycrane/pkg/statestore"
)

// DryRunPlaceholderIP is the address recorded for dry-run servers. It lives
// in the TEST-NET-3 documentation range so it can never be a real machine.
const DryRunPlaceholderIP = "203.0.113.1"

type DryRunProvisioner struct {
	Logger *zap.Logger
}

func (p *DryRunProvisioner) Create(_ context.Context, req orchestrator.CreateServerRequest) (string, error) {
	p.Logger.Info("dry-run: create server",
		zap.String("name", req.Name),
		zap.String("server_type", req.ServerType),
		zap.String("region", req.Region),
		zap.String("image", req.Image))
	return DryRunPlaceholderIP, nil
}

func (p *DryRunProvisioner) Delete(_ context.Context, name string) error {
	p.Logger.Info("dry-run: delete server", zap.String("name", name))
	return nil
}

type DryRunConfigurer struct {
	Logger *zap.Logger
}

func (c *DryRunConfigurer) Configure(_ context.Context, server *statestore.ServerRecord, _ map[string]any) error {
	c.Logger.Info("dry-run: configure server", zap.String("server", server.Name))
	return nil
}

type DryRunInstaller struct {
	Logger *zap.Logger
}

func (i *DryRunInstaller) Install(_ context.Context, server *statestore.ServerRecord, app *catalog.App, _ map[string]any) error {
	i.Logger.Info("dry-run: install app",
		zap.String("server", server.Name),
		zap.String("app", app.Name),
		zap.String("image", app.Image))
	return nil
}

func (i *DryRunInstaller) Remove(_ context.Context, server *statestore.ServerRecord, app *catalog.App) error {
	i.Logger.Info("dry-run: remove app",
		zap.String("server", server.Name),
		zap.String("app", app.Name))
	return nil
}
