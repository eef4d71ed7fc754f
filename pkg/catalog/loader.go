package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// manifestPattern matches app manifests anywhere under the catalog dir,
// so both flat layouts (apps/n8n.yaml) and nested ones
// (apps/databases/postgres.yaml) work.
const manifestPattern = "**/*.{yaml,yml}"

// Load reads every app manifest under dir and builds a catalog.
//
// A manifest file holds either a single app document or a list under a
// top-level `apps:` key.
func Load(dir string) (*Catalog, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("catalog dir is required")
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, manifestPattern)
	if err != nil {
		return nil, fmt.Errorf("scan catalog dir: %w", err)
	}

	var apps []*App
	for _, rel := range matches {
		loaded, err := loadFile(filepath.Join(dir, rel))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		apps = append(apps, loaded...)
	}

	if len(apps) == 0 {
		return nil, fmt.Errorf("no app manifests found under %s", dir)
	}
	return New(apps)
}

// manifestFile is the on-disk shape: either one app document, or a list
// under `apps:`.
type manifestFile struct {
	Apps []*App `yaml:"apps"`
}

func loadFile(path string) ([]*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var multi manifestFile
	if err := yaml.Unmarshal(data, &multi); err == nil && len(multi.Apps) > 0 {
		return multi.Apps, nil
	}

	var single App
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if strings.TrimSpace(single.Name) == "" {
		return nil, fmt.Errorf("manifest has no app name")
	}
	return []*App{&single}, nil
}
