// Package orchestrator turns user-requested operations (create a server,
// deploy an application, tear down infrastructure) into calls against the
// external collaborators, and binds them to job types so the executor can
// run them asynchronously.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skycrane/skycrane/pkg/catalog"
	"github.com/skycrane/skycrane/pkg/depgraph"
	"github.com/skycrane/skycrane/pkg/deploy"
	"github.com/skycrane/skycrane/pkg/statestore"
)

// Handle is the operation surface the executor-function adapters call into.
type Handle interface {
	CreateServer(ctx context.Context, req CreateServerRequest) (*statestore.ServerRecord, error)
	SetupServer(ctx context.Context, name string, cfg SetupConfig, opts ...deploy.Option) (*SetupResult, error)
	DeleteServer(ctx context.Context, name string) error
	DeployApp(ctx context.Context, server, app string, config map[string]any, opts ...deploy.Option) (*deploy.Result, error)
	UndeployApp(ctx context.Context, server, app string) error
	GetServer(ctx context.Context, name string) (*statestore.ServerRecord, error)
}

// Provisioner is the cloud-provider wrapper: it creates and destroys the
// actual machines. The orchestrator only records what it reports.
type Provisioner interface {
	Create(ctx context.Context, req CreateServerRequest) (ip string, err error)
	Delete(ctx context.Context, name string) error
}

// Configurer applies base configuration to a freshly provisioned server
// before any applications land on it.
type Configurer interface {
	Configure(ctx context.Context, server *statestore.ServerRecord, config map[string]any) error
}

// Store is the server-state surface the orchestrator writes through.
// *statestore.Store satisfies it.
type Store interface {
	GetServer(ctx context.Context, name string) (*statestore.ServerRecord, error)
	UpsertServer(ctx context.Context, rec *statestore.ServerRecord) error
	DeleteServer(ctx context.Context, name string) error
	SetServerApps(ctx context.Context, name string, apps []string) error
	AddDeployment(ctx context.Context, rec *statestore.DeploymentRecord) error
}

// Deployer is the strict, per-app deployment path. *deploy.Manager
// satisfies it.
type Deployer interface {
	DeployApp(ctx context.Context, server, app string, config map[string]any, opts ...deploy.Option) (*deploy.Result, error)
	UndeployApp(ctx context.Context, server, app string) error
}

// AppSource is the catalog surface used by batch setup.
type AppSource interface {
	Get(name string) (*catalog.App, error)
	DependencyMap() map[string][]string
}

// CreateServerRequest carries the fields needed to provision a server.
type CreateServerRequest struct {
	Name       string `json:"name" mapstructure:"name"`
	Provider   string `json:"provider" mapstructure:"provider"`
	ServerType string `json:"server_type" mapstructure:"server_type"`
	Region     string `json:"region" mapstructure:"region"`
	Image      string `json:"image" mapstructure:"image"`
}

// SetupConfig describes batch setup of a server: base configuration plus a
// requested set of applications installed in lenient dependency order.
type SetupConfig struct {
	Apps   []string       `json:"apps" mapstructure:"apps"`
	Config map[string]any `json:"config" mapstructure:"config"`
}

// SetupResult reports what one SetupServer call installed.
type SetupResult struct {
	Server         string   `json:"server"`
	Order          []string `json:"order"`
	Installed      []string `json:"installed,omitempty"`
	AlreadyPresent []string `json:"already_present,omitempty"`
}

// Config tunes orchestrator behavior.
type Config struct {
	// SettleDelay is how long batch setup waits after installing a
	// stateful backing service before continuing.
	SettleDelay time.Duration

	// StepObserver, when set, is called with the status of every recorded
	// deployment step during batch setup. Used for metrics.
	StepObserver func(status string)
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = deploy.DefaultSettleDelay
	}
	return c
}

// Orchestrator is the concrete Handle backed by the state store, the cloud
// provisioner, and the deployment manager.
type Orchestrator struct {
	store       Store
	provisioner Provisioner
	configurer  Configurer
	deployer    Deployer
	apps        AppSource
	installer   deploy.Installer
	cfg         Config
	logger      *zap.Logger
}

func New(store Store, provisioner Provisioner, configurer Configurer, deployer Deployer, apps AppSource, installer deploy.Installer, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:       store,
		provisioner: provisioner,
		configurer:  configurer,
		deployer:    deployer,
		apps:        apps,
		installer:   installer,
		cfg:         cfg.withDefaults(),
		logger:      logger,
	}
}

// CreateServer records the server as provisioning, asks the cloud provider
// for a machine, and stamps the record ready with its address. A provider
// failure leaves the record in error status so the operator can see it.
func (o *Orchestrator) CreateServer(ctx context.Context, req CreateServerRequest) (*statestore.ServerRecord, error) {
	rec := &statestore.ServerRecord{
		Name:       req.Name,
		Provider:   req.Provider,
		ServerType: req.ServerType,
		Region:     req.Region,
		Image:      req.Image,
		Status:     statestore.ServerStatusProvisioning,
	}
	if err := o.store.UpsertServer(ctx, rec); err != nil {
		return nil, err
	}

	o.logger.Info("provisioning server",
		zap.String("server", req.Name),
		zap.String("server_type", req.ServerType),
		zap.String("region", req.Region))

	ip, err := o.provisioner.Create(ctx, req)
	if err != nil {
		rec.Status = statestore.ServerStatusError
		if uerr := o.store.UpsertServer(ctx, rec); uerr != nil {
			o.logger.Error("record provisioning failure", zap.Error(uerr))
		}
		return nil, fmt.Errorf("create server %s: %w", req.Name, err)
	}

	rec.IPAddress = ip
	rec.Status = statestore.ServerStatusReady
	if err := o.store.UpsertServer(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetupServer applies base configuration and installs the requested
// applications in lenient batch order.
//
// Ordering comes from the fixed-point batch resolver, which silently drops
// members of an unsatisfiable subset instead of failing; the strict,
// cycle-rejecting path is DeployApp. The two are intentionally separate.
func (o *Orchestrator) SetupServer(ctx context.Context, name string, cfg SetupConfig, opts ...deploy.Option) (*SetupResult, error) {
	server, err := o.store.GetServer(ctx, name)
	if err != nil {
		return nil, err
	}

	report := deploy.ProgressSink(opts...)

	if o.configurer != nil {
		report(5, "applying base configuration")
		if err := o.configurer.Configure(ctx, server, cfg.Config); err != nil {
			return nil, fmt.Errorf("configure server %s: %w", name, err)
		}
	}

	order := depgraph.Resolve(cfg.Apps, o.apps.DependencyMap())
	result := &SetupResult{Server: name, Order: order}

	installed := append([]string(nil), server.Apps...)
	for i, appName := range order {
		if server.HasApp(appName) {
			result.AlreadyPresent = append(result.AlreadyPresent, appName)
			continue
		}
		app, err := o.apps.Get(appName)
		if err != nil {
			return result, err
		}

		report(10+i*85/len(order), fmt.Sprintf("installing %s", appName))
		if err := o.installer.Install(ctx, server, app, cfg.Config); err != nil {
			o.recordDeployment(ctx, name, appName, statestore.DeploymentStatusFailed, err.Error())
			return result, fmt.Errorf("install %s on %s: %w", appName, name, err)
		}
		if app.Stateful {
			if err := o.settle(ctx); err != nil {
				return result, err
			}
		}

		installed = appendApp(installed, app)
		if err := o.store.SetServerApps(ctx, name, installed); err != nil {
			return result, err
		}
		result.Installed = append(result.Installed, appName)
		o.recordDeployment(ctx, name, appName, statestore.DeploymentStatusInstalled, "")
	}

	report(100, "setup complete")
	o.logger.Info("server setup complete",
		zap.String("server", name),
		zap.Strings("installed", result.Installed))
	return result, nil
}

// DeleteServer tears the machine down at the provider and removes its
// record. The record is stamped deleting first so a crash mid-teardown is
// visible.
func (o *Orchestrator) DeleteServer(ctx context.Context, name string) error {
	rec, err := o.store.GetServer(ctx, name)
	if err != nil {
		return err
	}

	rec.Status = statestore.ServerStatusDeleting
	if err := o.store.UpsertServer(ctx, rec); err != nil {
		return err
	}

	if err := o.provisioner.Delete(ctx, name); err != nil {
		rec.Status = statestore.ServerStatusError
		if uerr := o.store.UpsertServer(ctx, rec); uerr != nil {
			o.logger.Error("record teardown failure", zap.Error(uerr))
		}
		return fmt.Errorf("delete server %s: %w", name, err)
	}

	if err := o.store.DeleteServer(ctx, name); err != nil {
		return err
	}
	o.logger.Info("server deleted", zap.String("server", name))
	return nil
}

// DeployApp installs one application and its unresolved dependencies via
// the strict deployment path.
func (o *Orchestrator) DeployApp(ctx context.Context, server, app string, config map[string]any, opts ...deploy.Option) (*deploy.Result, error) {
	return o.deployer.DeployApp(ctx, server, app, config, opts...)
}

// UndeployApp removes one application from a server.
func (o *Orchestrator) UndeployApp(ctx context.Context, server, app string) error {
	return o.deployer.UndeployApp(ctx, server, app)
}

// GetServer returns the persisted record for a server.
func (o *Orchestrator) GetServer(ctx context.Context, name string) (*statestore.ServerRecord, error) {
	return o.store.GetServer(ctx, name)
}

func (o *Orchestrator) recordDeployment(ctx context.Context, server, app, status, errText string) {
	if o.cfg.StepObserver != nil {
		o.cfg.StepObserver(status)
	}
	err := o.store.AddDeployment(ctx, &statestore.DeploymentRecord{
		Server: server,
		App:    app,
		Status: status,
		Error:  errText,
	})
	if err != nil {
		o.logger.Error("record deployment history", zap.Error(err))
	}
}

func (o *Orchestrator) settle(ctx context.Context) error {
	t := time.NewTimer(o.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func appendApp(current []string, app *catalog.App) []string {
	superseded := make(map[string]bool, len(app.Supersedes))
	for _, s := range app.Supersedes {
		superseded[s] = true
	}
	out := make([]string, 0, len(current)+1)
	for _, a := range current {
		if !superseded[a] && a != app.Name {
			out = append(out, a)
		}
	}
	return append(out, app.Name)
}
