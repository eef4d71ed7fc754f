// Package deploy installs applications and their dependency chains onto
// managed servers, with idempotent skips, per-step durable records, and
// partial-failure semantics.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skycrane/skycrane/pkg/catalog"
	"github.com/skycrane/skycrane/pkg/statestore"
)

// Sentinel errors for deployment operations.
var (
	// ErrDependencyResolution indicates the strict resolver rejected the
	// requested application's dependency chain.
	ErrDependencyResolution = errors.New("dependency resolution failed")

	// ErrInstallFailed indicates the installer failed partway through a
	// dependency chain.
	ErrInstallFailed = errors.New("install failed")
)

// Resolver is the catalog surface the manager depends on: per-application
// definitions and the strict, cycle-detecting dependency chain.
type Resolver interface {
	Get(name string) (*catalog.App, error)
	ResolveDependencies(name string) ([]string, error)
}

// Installer performs the actual installation work on a remote server. It is
// an external collaborator; the manager only sequences and records its calls.
type Installer interface {
	Install(ctx context.Context, server *statestore.ServerRecord, app *catalog.App, config map[string]any) error
	Remove(ctx context.Context, server *statestore.ServerRecord, app *catalog.App) error
}

// StateStore is the persistence surface the manager writes through.
type StateStore interface {
	GetServer(ctx context.Context, name string) (*statestore.ServerRecord, error)
	SetServerApps(ctx context.Context, name string, apps []string) error
	AddDeployment(ctx context.Context, rec *statestore.DeploymentRecord) error
}

// DefaultSettleDelay is how long the manager waits after installing a
// stateful backing service before dependents are installed, so the service
// becomes reachable before anything tries to connect.
const DefaultSettleDelay = 10 * time.Second

type Config struct {
	SettleDelay time.Duration

	// StepObserver, when set, is called with the status of every recorded
	// deployment step (installed, failed, removed). Used for metrics.
	StepObserver func(status string)
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Manager is the deployment manager.
type Manager struct {
	store     StateStore
	resolver  Resolver
	installer Installer
	cfg       Config
	logger    *zap.Logger
}

func NewManager(store StateStore, resolver Resolver, installer Installer, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		resolver:  resolver,
		installer: installer,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Result reports what one DeployApp call did.
type Result struct {
	Server string `json:"server"`
	App    string `json:"app"`

	// Skipped is true when the full resolved chain was already present
	// and no install calls were issued.
	Skipped bool `json:"skipped"`

	// Chain is the resolved installation order for the requested app.
	Chain []string `json:"chain,omitempty"`

	// AlreadyPresent lists chain members that needed no install.
	AlreadyPresent []string `json:"already_present,omitempty"`

	// Installed lists applications installed by this call, in order. On
	// failure it holds everything that succeeded before the failing step.
	Installed []string `json:"installed,omitempty"`

	// FailedOn names the dependency whose install failed, if any.
	FailedOn string `json:"failed_on,omitempty"`
}

// ProgressFunc receives human-readable step updates during a deployment.
type ProgressFunc func(percent int, step string)

// Option customizes one DeployApp call.
type Option func(*callOptions)

type callOptions struct {
	progress ProgressFunc
}

// WithProgress wires a progress callback into a deployment call.
func WithProgress(fn ProgressFunc) Option {
	return func(o *callOptions) { o.progress = fn }
}

// ProgressSink collapses call options into a single always-callable
// ProgressFunc, for collaborators that share the option type.
func ProgressSink(opts ...Option) ProgressFunc {
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}
	return call.report
}

// DeployApp installs appName and every unresolved dependency onto the named
// server.
//
// The resolved chain is installed strictly in order. After each successful
// step the server's persisted application set is updated (with any
// bundle-superseded names removed in the same write), so a crash mid-sequence
// leaves an accurate partial record. On a step failure the sequence stops:
// prior installs are kept, never rolled back, and the returned result names
// the failing dependency alongside everything installed before it.
func (m *Manager) DeployApp(ctx context.Context, serverName, appName string, config map[string]any, opts ...Option) (*Result, error) {
	var call callOptions
	for _, opt := range opts {
		opt(&call)
	}

	server, err := m.store.GetServer(ctx, serverName)
	if err != nil {
		return nil, err
	}

	chain, err := m.resolver.ResolveDependencies(appName)
	if err != nil {
		return nil, &DeployError{
			Server: serverName,
			App:    appName,
			Err:    fmt.Errorf("%w: %v", ErrDependencyResolution, err),
		}
	}

	result := &Result{Server: serverName, App: appName, Chain: chain}

	var missing []string
	for _, name := range chain {
		if server.HasApp(name) {
			result.AlreadyPresent = append(result.AlreadyPresent, name)
		} else {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		result.Skipped = true
		m.logger.Info("deploy skipped, already present",
			zap.String("server", serverName),
			zap.String("app", appName))
		call.report(100, fmt.Sprintf("%s already deployed", appName))
		return result, nil
	}

	installedSet := append([]string(nil), server.Apps...)
	for i, name := range missing {
		app, err := m.resolver.Get(name)
		if err != nil {
			return m.failStep(ctx, result, serverName, name, err)
		}

		call.report(stepPercent(i, len(missing)), fmt.Sprintf("installing %s", name))
		m.logger.Info("installing app",
			zap.String("server", serverName),
			zap.String("app", name),
			zap.Int("step", i+1),
			zap.Int("steps", len(missing)))

		if err := m.installer.Install(ctx, server, app, config); err != nil {
			return m.failStep(ctx, result, serverName, name, err)
		}

		if app.Stateful {
			call.report(stepPercent(i, len(missing)), fmt.Sprintf("waiting for %s to settle", name))
			if err := m.settle(ctx); err != nil {
				return m.failStep(ctx, result, serverName, name, err)
			}
		}

		// Durable per-step record: add the app and drop anything the
		// bundle supersedes in the same write.
		installedSet = applyInstall(installedSet, app)
		if err := m.store.SetServerApps(ctx, serverName, installedSet); err != nil {
			return m.failStep(ctx, result, serverName, name, err)
		}
		result.Installed = append(result.Installed, name)

		m.record(ctx, serverName, name, statestore.DeploymentStatusInstalled, "")
	}

	call.report(100, fmt.Sprintf("%s deployed", appName))
	m.logger.Info("deploy complete",
		zap.String("server", serverName),
		zap.String("app", appName),
		zap.Strings("installed", result.Installed))
	return result, nil
}

// UndeployApp removes an application from a server and updates the record.
// Dependencies are left in place; other applications may still use them.
func (m *Manager) UndeployApp(ctx context.Context, serverName, appName string) error {
	server, err := m.store.GetServer(ctx, serverName)
	if err != nil {
		return err
	}
	if !server.HasApp(appName) {
		return nil
	}

	app, err := m.resolver.Get(appName)
	if err != nil {
		return err
	}
	if err := m.installer.Remove(ctx, server, app); err != nil {
		m.record(ctx, serverName, appName, statestore.DeploymentStatusFailed, err.Error())
		return &DeployError{Server: serverName, App: appName, Err: fmt.Errorf("%w: %v", ErrInstallFailed, err)}
	}

	remaining := make([]string, 0, len(server.Apps))
	for _, a := range server.Apps {
		if a != appName {
			remaining = append(remaining, a)
		}
	}
	if err := m.store.SetServerApps(ctx, serverName, remaining); err != nil {
		return err
	}
	m.record(ctx, serverName, appName, statestore.DeploymentStatusRemoved, "")

	m.logger.Info("app undeployed",
		zap.String("server", serverName),
		zap.String("app", appName))
	return nil
}

// failStep finalizes a result after a mid-chain failure. Installed steps stay
// recorded; nothing is rolled back.
func (m *Manager) failStep(ctx context.Context, result *Result, server, app string, cause error) (*Result, error) {
	result.FailedOn = app
	m.record(ctx, server, app, statestore.DeploymentStatusFailed, cause.Error())
	m.logger.Warn("deploy failed",
		zap.String("server", server),
		zap.String("app", app),
		zap.Strings("installed_before_failure", result.Installed),
		zap.Error(cause))
	return result, &DeployError{Server: server, App: app, Err: fmt.Errorf("%w: %v", ErrInstallFailed, cause)}
}

// record appends a deployment history row. History is advisory; a write
// failure is logged but never fails the deployment itself.
func (m *Manager) record(ctx context.Context, server, app, status, errText string) {
	if m.cfg.StepObserver != nil {
		m.cfg.StepObserver(status)
	}
	err := m.store.AddDeployment(ctx, &statestore.DeploymentRecord{
		Server: server,
		App:    app,
		Status: status,
		Error:  errText,
	})
	if err != nil {
		m.logger.Error("record deployment history", zap.Error(err))
	}
}

func (m *Manager) settle(ctx context.Context) error {
	t := time.NewTimer(m.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// applyInstall returns the new application set after installing app: the
// app's name added, and any names it supersedes removed.
func applyInstall(current []string, app *catalog.App) []string {
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

func stepPercent(step, total int) int {
	if total <= 0 {
		return 0
	}
	return step * 100 / total
}

func (o *callOptions) report(percent int, step string) {
	if o.progress != nil {
		o.progress(percent, step)
	}
}

// DeployError wraps deployment failures with context.
type DeployError struct {
	Server string
	App    string
	Err    error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy %s on %s: %v", e.App, e.Server, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// IsDependencyResolution returns true if the error came from the strict
// resolver rejecting the chain.
func IsDependencyResolution(err error) bool {
	return errors.Is(err, ErrDependencyResolution)
}

// IsInstallFailed returns true if the error came from a failed install step.
func IsInstallFailed(err error) bool {
	return errors.Is(err, ErrInstallFailed)
}
