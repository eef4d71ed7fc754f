// Package catalog loads application definitions from YAML manifests and
// resolves per-application dependency chains.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for catalog operations.
var (
	// ErrAppNotFound indicates the requested application is not in the catalog.
	ErrAppNotFound = errors.New("app not found")

	// ErrCircularDependency indicates the strict resolver revisited an
	// application still on the active resolution path.
	ErrCircularDependency = errors.New("circular dependency")
)

// App is one installable application definition.
//
// NOTE: Field names are part of the on-disk manifest contract.
type App struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Image       string `yaml:"image,omitempty"`

	// DependsOn lists applications that must be installed and reachable
	// before this one starts.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Stateful marks backing services (relational or key-value stores)
	// that need a settling delay after install before dependents connect.
	Stateful bool `yaml:"stateful,omitempty"`

	// Supersedes lists legacy individual component names this app replaces
	// when it is a bundle. Installing the bundle removes these names from
	// the server's application record in the same update.
	Supersedes []string `yaml:"supersedes,omitempty"`

	Env   map[string]string `yaml:"env,omitempty"`
	Ports []string          `yaml:"ports,omitempty"`
}

// Catalog is an immutable set of application definitions keyed by name.
type Catalog struct {
	apps map[string]*App
}

// New builds a catalog from definitions. Empty or duplicate names are
// rejected so resolution is unambiguous.
func New(apps []*App) (*Catalog, error) {
	byName := make(map[string]*App, len(apps))
	for _, a := range apps {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return nil, fmt.Errorf("app definition with empty name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate app definition: %s", name)
		}
		byName[name] = a
	}
	return &Catalog{apps: byName}, nil
}

// Get returns the definition for name.
func (c *Catalog) Get(name string) (*App, error) {
	a, ok := c.apps[name]
	if !ok {
		return nil, &AppError{Op: "Get", App: name, Err: ErrAppNotFound}
	}
	return a, nil
}

// Names returns all application names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.apps))
	for n := range c.apps {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DependencyMap returns name -> depends_on for every app in the catalog,
// for use with the lenient batch resolver.
func (c *Catalog) DependencyMap() map[string][]string {
	out := make(map[string][]string, len(c.apps))
	for n, a := range c.apps {
		out[n] = append([]string(nil), a.DependsOn...)
	}
	return out
}

// AppError wraps catalog failures with context.
type AppError struct {
	Op  string
	App string
	Err error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("catalog %s: %s: %v", e.Op, e.App, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing application.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppNotFound)
}

// IsCircular returns true if the error indicates a dependency cycle.
func IsCircular(err error) bool {
	return errors.Is(err, ErrCircularDependency)
}
