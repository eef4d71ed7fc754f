package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New([]*App{
		{Name: "postgres", Stateful: true},
		{Name: "redis", Stateful: true},
		{Name: "n8n", DependsOn: []string{"postgres", "redis"}},
		{Name: "caddy"},
		{Name: "monitoring-stack", Supersedes: []string{"prometheus", "grafana"}},
	})
	require.NoError(t, err)
	return c
}

func TestCatalog_Get(t *testing.T) {
	c := testCatalog(t)

	app, err := c.Get("n8n")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres", "redis"}, app.DependsOn)

	_, err = c.Get("ghost")
	assert.True(t, IsNotFound(err))
}

func TestCatalog_RejectsDuplicates(t *testing.T) {
	_, err := New([]*App{{Name: "redis"}, {Name: "redis"}})
	assert.Error(t, err)
}

func TestResolveDependencies_Chain(t *testing.T) {
	c := testCatalog(t)

	chain, err := c.ResolveDependencies("n8n")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "n8n", chain[len(chain)-1], "requested app comes last")
	assert.ElementsMatch(t, []string{"postgres", "redis", "n8n"}, chain)
}

func TestResolveDependencies_NoDeps(t *testing.T) {
	c := testCatalog(t)
	chain, err := c.ResolveDependencies("caddy")
	require.NoError(t, err)
	assert.Equal(t, []string{"caddy"}, chain)
}

func TestResolveDependencies_Cycle(t *testing.T) {
	c, err := New([]*App{
		{Name: "app1", DependsOn: []string{"app2"}},
		{Name: "app2", DependsOn: []string{"app1"}},
	})
	require.NoError(t, err)

	_, err = c.ResolveDependencies("app1")
	assert.True(t, IsCircular(err))

	_, err = c.ResolveDependencies("app2")
	assert.True(t, IsCircular(err))
}

func TestResolveDependencies_SharedDepOnce(t *testing.T) {
	c, err := New([]*App{
		{Name: "postgres"},
		{Name: "api", DependsOn: []string{"postgres"}},
		{Name: "worker", DependsOn: []string{"postgres", "api"}},
	})
	require.NoError(t, err)

	chain, err := c.ResolveDependencies("worker")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres", "api", "worker"}, chain)
}

func TestResolveDependencies_MissingDep(t *testing.T) {
	c, err := New([]*App{{Name: "api", DependsOn: []string{"ghost"}}})
	require.NoError(t, err)

	_, err = c.ResolveDependencies("api")
	assert.True(t, IsNotFound(err))
}

func TestLoad_DirOfManifests(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "n8n.yaml"), []byte(`
name: n8n
image: n8nio/n8n:latest
depends_on:
  - postgres
  - redis
`), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "databases"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "databases", "stores.yml"), []byte(`
apps:
  - name: postgres
    image: postgres:16
    stateful: true
  - name: redis
    image: redis:7
    stateful: true
`), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"n8n", "postgres", "redis"}, c.Names())

	chain, err := c.ResolveDependencies("n8n")
	require.NoError(t, err)
	assert.Equal(t, "n8n", chain[len(chain)-1])

	pg, err := c.Get("postgres")
	require.NoError(t, err)
	assert.True(t, pg.Stateful)
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
